package vclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/viicommerce/vsession/vdef"
)

// Login is the payload of a successful login.
type Login struct {
	User      *vdef.User
	SessionID string
}

// Registration is a new account request.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name,omitempty"`
	CompanyCode string `json:"companyCode,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message   string     `json:"message"`
	User      *vdef.User `json:"user"`
	IDSession string     `json:"idSession"`
}

type meResponse struct {
	User *vdef.User `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login posts the credentials. A 2xx response without both a user and a
// session identifier is reported as a failed result.
func (c *Client) Login(ctx context.Context, email, password string) (vdef.Result[Login], error) {
	req := &credentials{Email: strings.TrimSpace(email), Password: password}
	return uniform(ctx, c, http.MethodPost, PathLogin, req, MsgLoginFailed,
		func(r *loginResponse) (Login, string, error) {
			if r.User == nil {
				return Login{}, "", fmt.Errorf("%w: login response has no user", vdef.ErrMalformedResponse)
			}
			if r.IDSession == "" {
				return Login{}, "", fmt.Errorf("%w: login response has no idSession", vdef.ErrMalformedResponse)
			}
			return Login{User: r.User, SessionID: r.IDSession}, r.Message, nil
		})
}

// Logout asks the backend to end the current session.
func (c *Client) Logout(ctx context.Context) (vdef.Result[struct{}], error) {
	return uniform[struct{}](ctx, c, http.MethodPost, PathLogout, nil, MsgLogoutFailed, messageOnly)
}

// Me returns the identity of the current session. Every failure, including
// an HTTP error status or a body without a user, is returned as an error.
func (c *Client) Me(ctx context.Context) (*vdef.User, error) {
	var resp meResponse
	if err := call[struct{}](ctx, c, http.MethodGet, PathMe, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("%w: me response has no user", vdef.ErrMalformedResponse)
	}
	return resp.User, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, reg Registration) (vdef.Result[struct{}], error) {
	reg.Email = strings.TrimSpace(reg.Email)
	return uniform(ctx, c, http.MethodPost, PathRegister, &reg, MsgRequestFailed, messageOnly)
}

func messageOnly(r *messageResponse) (struct{}, string, error) {
	return struct{}{}, r.Message, nil
}
