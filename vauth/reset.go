package vauth

import (
	"context"
	"strings"

	"github.com/viicommerce/vsession"
	"github.com/viicommerce/vsession/vdef"
)

// SendVerificationCode starts a password reset for email. The backend
// mails a code and returns a request ticket, which replaces any ticket
// from an earlier attempt. Only a request that succeeds counts against the
// resend interval.
func (m *Manager) SendVerificationCode(ctx context.Context, email string) vdef.Result[struct{}] {
	if m.resend != nil {
		m.resendMu.Lock()
		defer m.resendMu.Unlock()
		if m.resend.TokensAt(timeNow()) < 1 {
			return vdef.Fail[struct{}](MsgResendTooSoon, vdef.ErrRateLimited)
		}
	}

	email = strings.TrimSpace(email)
	res, err := m.api.RequestReset(ctx, email)
	if err != nil {
		m.logf("auth: reset request: %v", err)
		return vdef.Fail[struct{}](MsgUnreachable, err)
	}
	if !res.Success {
		return vdef.Fail[struct{}](res.Message, res.Err)
	}
	if m.resend != nil {
		m.resend.AllowN(timeNow(), 1)
	}
	t := vsession.Ticket{Stage: vsession.StageRequested, Token: res.Data, Email: email}
	if err := m.creds.PutTicket(t); err != nil {
		m.logf("auth: reset request: %v", err)
		return vdef.Fail[struct{}](MsgStoreFailed, err)
	}
	return vdef.Ok(struct{}{}, res.Message)
}

// VerifyCode checks the emailed code against the request ticket. On
// success the request ticket is replaced by the reset ticket. A wrong code
// keeps the request ticket so the user can try again.
func (m *Manager) VerifyCode(ctx context.Context, otp string) vdef.Result[struct{}] {
	t, ok := m.ticket(vsession.StageRequested)
	if !ok {
		return vdef.Fail[struct{}](MsgTicketMissing, vdef.ErrTicketMissing)
	}

	res, err := m.api.VerifyCode(ctx, t.Token, otp)
	if err != nil {
		m.logf("auth: verify code: %v", err)
		return vdef.Fail[struct{}](MsgUnreachable, err)
	}
	if !res.Success {
		return vdef.Fail[struct{}](res.Message, res.Err)
	}
	next := vsession.Ticket{Stage: vsession.StageVerified, Token: res.Data, Email: t.Email}
	if err := m.creds.PutTicket(next); err != nil {
		m.logf("auth: verify code: %v", err)
		return vdef.Fail[struct{}](MsgStoreFailed, err)
	}
	return vdef.Ok(struct{}{}, res.Message)
}

// ResetPassword sets the new password with the reset ticket and deletes
// the ticket on success.
func (m *Manager) ResetPassword(ctx context.Context, newPassword string) vdef.Result[struct{}] {
	t, ok := m.ticket(vsession.StageVerified)
	if !ok {
		return vdef.Fail[struct{}](MsgTicketMissing, vdef.ErrTicketMissing)
	}

	res, err := m.api.SetNewPassword(ctx, t.Token, newPassword)
	if err != nil {
		m.logf("auth: reset password: %v", err)
		return vdef.Fail[struct{}](MsgUnreachable, err)
	}
	if !res.Success {
		return vdef.Fail[struct{}](res.Message, res.Err)
	}
	if err := m.creds.ClearTicket(); err != nil {
		m.logf("auth: reset password: %v", err)
	}
	return res
}

// AbandonReset deletes any pending reset ticket.
func (m *Manager) AbandonReset() error {
	return m.creds.ClearTicket()
}

// ResetPending reports the stage of the pending reset, if any.
func (m *Manager) ResetPending() (vsession.TicketStage, bool) {
	t, ok := m.creds.Ticket()
	return t.Stage, ok
}

// ticket returns the current ticket when it holds stage.
func (m *Manager) ticket(stage vsession.TicketStage) (vsession.Ticket, bool) {
	t, ok := m.creds.Ticket()
	if !ok {
		return vsession.Ticket{}, false
	}
	if t.Stage != stage {
		m.logf("auth: reset ticket is %s, want %s", t.Stage, stage)
		return vsession.Ticket{}, false
	}
	return t, true
}
