package api

// LoginRequest for POST /login
type LoginRequest struct {
	AgentName string `json:"agentname"`
	Password  string `json:"password"`
}

// LoginResponse from POST /login
type LoginResponse struct {
	Token string `json:"token"`
	Agent Agent  `json:"agent"`
}

// Agent identifies the logged-in support agent.
type Agent struct {
	ID        int64  `json:"id"`
	AgentName string `json:"agentname"`
	Persona   string `json:"persona"`
}

// LogoutRequest for POST /logout
type LogoutRequest struct {
	AgentID int64 `json:"agent_id"`
}

// LogoutResponse from POST /logout
type LogoutResponse struct {
	Message string `json:"message"`
}

// errorResponse is the backend's error envelope. Detail is either a string or
// a list of validation errors.
type errorResponse struct {
	Detail any `json:"detail"`
}
