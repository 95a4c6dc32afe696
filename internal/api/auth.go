package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingToken is returned when a login response carries no token.
var ErrMissingToken = errors.New("login response missing token")

// Login exchanges agent credentials for a session token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, c.loginPath, "", req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return nil, ErrMissingToken
	}

	c.logger.Info("agent logged in",
		"agent_id", resp.Agent.ID,
		"agent_name", resp.Agent.AgentName,
	)
	return &resp, nil
}

// Logout ends the agent's backend session.
func (c *Client) Logout(ctx context.Context, token string, agentID int64) error {
	var resp LogoutResponse
	if err := c.post(ctx, c.logoutPath, token, LogoutRequest{AgentID: agentID}, &resp); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	c.logger.Info("agent logged out", "agent_id", agentID, "message", resp.Message)
	return nil
}
