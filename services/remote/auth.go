package remotesvc

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
)

var (
	_ session.Authenticator = (*Client)(nil) // interface compliance check
	_ user.Registrar        = (*Client)(nil) // interface compliance check

	nowFunc = time.Now // mockable
)

type (
	account struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	tokenResponse struct {
		AccessToken  string  `json:"access_token"`
		RefreshToken string  `json:"refresh_token"`
		ExpiresIn    int64   `json:"expires_in"`
		ExpiresAt    int64   `json:"expires_at"`
		User         account `json:"user"`
	}
)

func (c *Client) SignInWithCredentials(ctx context.Context, email, password string) (session.Principal, error) {
	res, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/token?grant_type=password",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return session.Principal{}, errors.Wrap(err, "signing in")
	}

	var tok tokenResponse
	if err = decode(res, &tok); err != nil {
		return session.Principal{}, err
	}
	if tok.User.ID == "" || tok.AccessToken == "" {
		return session.Principal{}, errors.New("signing in: incomplete token response")
	}

	expiresAt := nowFunc().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.ExpiresAt > 0 {
		expiresAt = time.Unix(tok.ExpiresAt, 0)
	}
	return session.Principal{
		ID:           tok.User.ID,
		Email:        tok.User.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt.UTC(),
	}, nil
}

func (c *Client) SignOut(ctx context.Context, p session.Principal) error {
	if _, err := c.do(ctx, request{method: http.MethodPost, path: authPath + "/logout", token: p.AccessToken}); err != nil {
		return errors.Wrap(err, "signing out")
	}
	return nil
}

func isEmailExists(err error) bool {
	var rErr *core.RemoteError
	if !errors.As(err, &rErr) {
		return false
	}
	msg := strings.ToLower(rErr.Message)
	return rErr.Code == "email_exists" || rErr.Code == "user_already_exists" ||
		strings.Contains(msg, "already been registered") || strings.Contains(msg, "already registered")
}

func isNotFound(err error) bool {
	var rErr *core.RemoteError
	return errors.As(err, &rErr) && rErr.StatusCode == http.StatusNotFound
}

func adminUserPath(id string) string {
	return authPath + "/admin/users/" + url.PathEscape(id)
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	res, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/admin/users",
		body: map[string]interface{}{
			"email":         strings.ToLower(email),
			"password":      password,
			"email_confirm": true,
		},
	})
	if err != nil {
		if isEmailExists(err) {
			return "", user.ErrEmailExists
		}
		return "", errors.Wrap(err, "creating account")
	}
	var acc account
	if err = decode(res, &acc); err != nil {
		return "", err
	}
	return acc.ID, nil
}

func (c *Client) SetPassword(ctx context.Context, accountID, password string) error {
	_, err := c.do(ctx, request{method: http.MethodPut, path: adminUserPath(accountID), body: map[string]string{"password": password}})
	if err != nil {
		if isNotFound(err) {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "setting password")
	}
	return nil
}

func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := c.do(ctx, request{method: http.MethodDelete, path: adminUserPath(accountID)}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "deleting account")
	}
	return nil
}
