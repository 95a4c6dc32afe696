// Package api provides the HTTP client for the agent-assist backend.
//
// Endpoints:
//   - POST /login  {agentname, password} -> {token, agent{id, agentname, persona}}
//   - POST /logout {agent_id}, authorized with the session token
//
// Errors are reported as *APIError carrying the backend's detail message.
package api
