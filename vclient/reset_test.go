package vclient

import (
	"context"
	"testing"
)

func TestResetChain(t *testing.T) {
	backend, c, _ := setup(t)
	ctx := context.Background()

	req, err := c.RequestReset(ctx, "alice@example.com")
	if err != nil || !req.Success || req.Data == "" {
		t.Fatalf("RequestReset() = %+v, %v", req, err)
	}

	bad, err := c.VerifyCode(ctx, req.Data, "not-the-code")
	if err != nil {
		t.Fatal(err)
	}
	if bad.Success || bad.Message != "Incorrect code" {
		t.Fatalf("VerifyCode(wrong) = %+v", bad)
	}

	code := backend.OTP("alice@example.com")
	ver, err := c.VerifyCode(ctx, req.Data, code)
	if err != nil || !ver.Success || ver.Data == "" {
		t.Fatalf("VerifyCode() = %+v, %v", ver, err)
	}
	if ver.Data == req.Data {
		t.Error("verified token equals request token")
	}

	// The request token is single use.
	again, _ := c.VerifyCode(ctx, req.Data, code)
	if again.Success {
		t.Error("request token accepted twice")
	}

	// A request-stage token cannot set a password.
	early, _ := c.SetNewPassword(ctx, req.Data, "brand-new-pass")
	if early.Success {
		t.Error("SetNewPassword() accepted a request-stage token")
	}

	set, err := c.SetNewPassword(ctx, ver.Data, "brand-new-pass")
	if err != nil || !set.Success {
		t.Fatalf("SetNewPassword() = %+v, %v", set, err)
	}
	if set.Message != "Password updated" {
		t.Errorf("Message = %q", set.Message)
	}
	if !backend.CheckPassword("alice@example.com", "brand-new-pass") {
		t.Error("password not changed on the backend")
	}

	reuse, _ := c.SetNewPassword(ctx, ver.Data, "another-pass-1")
	if reuse.Success {
		t.Error("reset token accepted twice")
	}
}

func TestRequestResetUnknownEmail(t *testing.T) {
	_, c, _ := setup(t)
	res, err := c.RequestReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Message != "Email not registered" {
		t.Fatalf("RequestReset() = %+v", res)
	}
}

func TestRegister(t *testing.T) {
	backend, c, _ := setup(t)
	ctx := context.Background()

	res, err := c.Register(ctx, Registration{Email: "new@example.com", Password: "long-enough", Name: "New", CompanyCode: "C09"})
	if err != nil || !res.Success {
		t.Fatalf("Register() = %+v, %v", res, err)
	}
	if !backend.CheckPassword("new@example.com", "long-enough") {
		t.Error("account not created")
	}

	dup, err := c.Register(ctx, Registration{Email: "new@example.com", Password: "long-enough"})
	if err != nil {
		t.Fatal(err)
	}
	if dup.Success || dup.Message != "Email already registered" {
		t.Errorf("duplicate Register() = %+v", dup)
	}
}
