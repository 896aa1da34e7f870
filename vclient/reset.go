package vclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/viicommerce/vsession/vdef"
)

type resetRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

type setPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type tokenResponse struct {
	Message    string `json:"message"`
	ResetToken string `json:"resetToken"`
}

func resetToken(r *tokenResponse) (string, string, error) {
	if r.ResetToken == "" {
		return "", "", fmt.Errorf("%w: response has no resetToken", vdef.ErrMalformedResponse)
	}
	return r.ResetToken, r.Message, nil
}

// RequestReset starts a password reset and returns the request token.
func (c *Client) RequestReset(ctx context.Context, email string) (vdef.Result[string], error) {
	req := &resetRequest{Email: strings.TrimSpace(email)}
	return uniform(ctx, c, http.MethodPost, PathResetRequest, req, MsgRequestFailed, resetToken)
}

// VerifyCode exchanges the request token and the emailed code for a reset token.
func (c *Client) VerifyCode(ctx context.Context, token, otp string) (vdef.Result[string], error) {
	req := &verifyRequest{Token: token, OTP: strings.TrimSpace(otp)}
	return uniform(ctx, c, http.MethodPost, PathResetVerify, req, MsgRequestFailed, resetToken)
}

// SetNewPassword consumes the reset token.
func (c *Client) SetNewPassword(ctx context.Context, token, newPassword string) (vdef.Result[struct{}], error) {
	req := &setPasswordRequest{Token: token, NewPassword: newPassword}
	return uniform(ctx, c, http.MethodPost, PathResetSet, req, MsgRequestFailed, messageOnly)
}
