package portal

import (
	"context"
	"fmt"
)

const mePath = "/me"

// User is the account behind a token.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Me resolves the account owning the token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	var raw map[string]any
	if err := c.getJSON(ctx, mePath, token, &raw); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}

	return &User{
		ID:       valueAsString(raw["id"]),
		Username: valueAsString(raw["username"]),
		Email:    valueAsString(raw["email"]),
		Role:     valueAsString(raw["role"]),
	}, nil
}

func valueAsString(v any) string {
	if v == nil {
		return ""
	}

	switch typed := v.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
