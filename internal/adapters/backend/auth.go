package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"loo_review/internal/domain"
)

const msgAuthFailed = "Authentication failed."

var _ domain.AuthBackend = (*Client)(nil)

func (c *Client) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	return c.exchange(ctx, "/auth/login", "login", map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
}

func (c *Client) Register(ctx context.Context, fullName, email, password string) (domain.AuthResult, error) {
	return c.exchange(ctx, "/auth/register", "register", map[string]string{
		"full_name": strings.TrimSpace(fullName),
		"email":     strings.TrimSpace(email),
		"password":  password,
	})
}

func (c *Client) Google(ctx context.Context, credential string) (domain.AuthResult, error) {
	return c.exchange(ctx, "/auth/google", "google", map[string]string{"credential": credential})
}

func (c *Client) Apple(ctx context.Context, identityToken, fullName string) (domain.AuthResult, error) {
	body := map[string]string{"identity_token": identityToken}
	if fullName = strings.TrimSpace(fullName); fullName != "" {
		body["full_name"] = fullName
	}
	return c.exchange(ctx, "/auth/apple", "apple", body)
}

// Me returns the user behind the current token. A 401 surfaces as AuthError.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	b, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/auth/me",
		endpoint: "me",
		fallback: msgAuthFailed,
		retry:    true,
	})
	if err != nil {
		return domain.User{}, err
	}
	m := decodeObject(b)
	if m == nil {
		return domain.User{}, &domain.TransportError{Status: http.StatusOK, Message: msgAuthFailed, Err: fmt.Errorf("unexpected response body")}
	}
	if inner, ok := m["user"].(map[string]any); ok {
		m = inner
	}
	return mapUser(m), nil
}

// exchange posts credentials and expects {access_token, user}.
func (c *Client) exchange(ctx context.Context, path, endpoint string, payload map[string]string) (domain.AuthResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.AuthResult{}, err
	}
	b, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     path,
		body:     body,
		ctype:    "application/json",
		endpoint: endpoint,
		fallback: msgAuthFailed,
		authCall: true,
	})
	if err != nil {
		return domain.AuthResult{}, err
	}

	m := decodeObject(b)
	tok := ""
	if m != nil {
		tok = firstNonEmptyAlias(m, map[string][]string{"token": {"access_token", "token"}}, "token")
	}
	if tok == "" {
		return domain.AuthResult{}, &domain.TransportError{Status: http.StatusOK, Message: msgAuthFailed, Err: fmt.Errorf("response has no access token")}
	}
	var user domain.User
	if u, ok := m["user"].(map[string]any); ok {
		user = mapUser(u)
	}
	return domain.AuthResult{Token: tok, User: user}, nil
}
