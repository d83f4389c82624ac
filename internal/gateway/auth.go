package gateway

import (
	"context"
	"encoding/json"

	"github.com/taskhive/taskhive/internal/types"
)

// Auth RPCs. Credential exchange itself happens backend-side; the client
// only forwards credentials and records the returned token so redials stay
// authenticated. These methods satisfy the session manager's AuthProvider.

type credentialsParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authResult struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

func (c *Client) authRPC(ctx context.Context, method string, params credentialsParams) (string, error) {
	result, err := c.rpc(ctx, method, params)
	if err != nil {
		return "", err
	}

	var resp authResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", gwErr(KindDecode, method, err)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	return resp.UserID, nil
}

// SignIn exchanges credentials for a user id and session token.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	return c.authRPC(ctx, "signin", credentialsParams{Email: email, Password: password})
}

// SignUp registers a new account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (string, error) {
	return c.authRPC(ctx, "signup", credentialsParams{Email: email, Password: password, Name: name})
}

// Memberships returns every workspace membership held by the user.
func (c *Client) Memberships(ctx context.Context, userID string) ([]types.Membership, error) {
	result, err := c.rpc(ctx, "memberships", map[string]string{"user_id": userID})
	if err != nil {
		return nil, err
	}

	var memberships []types.Membership
	if err := json.Unmarshal(result, &memberships); err != nil {
		return nil, gwErr(KindDecode, "memberships", err)
	}
	return memberships, nil
}

// RequestJoin files a pending membership for the user in a workspace.
func (c *Client) RequestJoin(ctx context.Context, userID, workspaceID string) error {
	_, err := c.rpc(ctx, "join_request", map[string]string{
		"user_id":      userID,
		"workspace_id": workspaceID,
	})
	return err
}

// ApproveMember approves a pending membership. Admin-only backend-side.
func (c *Client) ApproveMember(ctx context.Context, userID, workspaceID string) error {
	_, err := c.rpc(ctx, "join_approve", map[string]string{
		"user_id":      userID,
		"workspace_id": workspaceID,
	})
	return err
}

// Leave deletes the user's membership in a workspace.
func (c *Client) Leave(ctx context.Context, userID, workspaceID string) error {
	_, err := c.rpc(ctx, "leave", map[string]string{
		"user_id":      userID,
		"workspace_id": workspaceID,
	})
	return err
}
