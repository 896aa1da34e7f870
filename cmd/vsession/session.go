package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/viicommerce/vsession"
	"github.com/viicommerce/vsession/vauth"
	"github.com/viicommerce/vsession/vclient"
	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vstore"
)

// LoginOptions configures the login mode.
type LoginOptions struct {
	Common   CommonOptions
	Email    string
	Password string
}

// RegisterOptions configures the register mode.
type RegisterOptions struct {
	Common      CommonOptions
	Email       string
	Password    string
	Name        string
	CompanyCode string
}

// ResetOptions configures the reset mode.
type ResetOptions struct {
	Common   CommonOptions
	Step     string
	Email    string
	Code     string
	Password string
}

// session wires the store, client and manager for one command.
type session struct {
	profile *Profile
	store   vstore.DataStore
	creds   *vsession.CredentialStore
	client  *vclient.Client
	mgr     *vauth.Manager
}

func openSession(o *CommonOptions) (*session, error) {
	p, err := o.resolve()
	if err != nil {
		return nil, err
	}
	ttl, err := p.ticketTTL()
	if err != nil {
		return nil, err
	}
	obs := logObserver{verbose: o.Verbose}

	store, err := vstore.Open(o.StoreKind, o.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	creds, err := vsession.NewCredentialStore(vsession.CredentialConfig{
		Store:     store,
		Observer:  obs,
		TicketTTL: ttl,
	})
	if err != nil {
		vstore.Close(store)
		return nil, err
	}
	client, err := vclient.New(vclient.Config{
		BaseURL:  o.BaseURL,
		Session:  creds,
		HTTP3:    o.HTTP3,
		Timeout:  o.Timeout,
		Observer: obs,
	})
	if err != nil {
		vstore.Close(store)
		return nil, err
	}
	mgr, err := vauth.NewManager(vauth.Config{
		Client:      client,
		Credentials: creds,
		Observer:    obs,
	})
	if err != nil {
		client.Close()
		vstore.Close(store)
		return nil, err
	}
	return &session{profile: p, store: store, creds: creds, client: client, mgr: mgr}, nil
}

func (s *session) Close() {
	s.client.Close()
	vstore.Close(s.store)
}

// RunLogin signs in, replacing any stored session.
func RunLogin(ctx context.Context, opts *LoginOptions) (*vdef.User, error) {
	if opts.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	s, err := openSession(&opts.Common)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	password := opts.Password
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return nil, err
		}
	}

	res := s.mgr.Login(ctx, opts.Email, password)
	if !res.Success {
		return nil, fmt.Errorf("login failed: %s", res.Message)
	}
	homes, err := s.profile.homes()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Signed in as %s (%s)\n", res.Data.Email, res.Data.Role)
	fmt.Printf("Home: %s\n", homes.HomeFor(res.Data.Role))
	fmt.Printf("Session saved to: %s\n", s.creds.Path())
	return res.Data, nil
}

// RunLogout ends the stored session. Local state is dropped even when the
// backend cannot be reached.
func RunLogout(ctx context.Context, opts *CommonOptions) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	res := s.mgr.Logout(ctx)
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "warning: backend logout failed: %v\n", res.Err)
	}
	fmt.Println(res.Message)
	return nil
}

// RunMe validates the stored session and prints the user as JSON.
func RunMe(ctx context.Context, opts *CommonOptions) (*vdef.User, error) {
	s, err := openSession(opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := s.mgr.Start(ctx); err != nil {
		return nil, err
	}
	state, user := s.mgr.Snapshot()
	if state != vdef.StateAuthenticated {
		return nil, fmt.Errorf("not signed in")
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return nil, err
	}
	fmt.Println(string(data))
	return user, nil
}

// RunRegister creates an account without signing in.
func RunRegister(ctx context.Context, opts *RegisterOptions) error {
	if opts.Email == "" {
		return fmt.Errorf("email is required")
	}
	s, err := openSession(&opts.Common)
	if err != nil {
		return err
	}
	defer s.Close()

	password := opts.Password
	if password == "" {
		if password, err = promptPassword("New password: "); err != nil {
			return err
		}
	}
	res := s.mgr.Register(ctx, vclient.Registration{
		Email:       opts.Email,
		Password:    password,
		Name:        opts.Name,
		CompanyCode: opts.CompanyCode,
	})
	if !res.Success {
		return fmt.Errorf("register failed: %s", res.Message)
	}
	fmt.Println(res.Message)
	return nil
}

// RunReset runs one step of the password reset.
func RunReset(ctx context.Context, opts *ResetOptions) error {
	s, err := openSession(&opts.Common)
	if err != nil {
		return err
	}
	defer s.Close()

	var res vdef.Result[struct{}]
	switch strings.ToLower(opts.Step) {
	case "request":
		if opts.Email == "" {
			return fmt.Errorf("email is required")
		}
		res = s.mgr.SendVerificationCode(ctx, opts.Email)
	case "verify":
		if opts.Code == "" {
			return fmt.Errorf("code is required")
		}
		res = s.mgr.VerifyCode(ctx, opts.Code)
	case "set":
		password := opts.Password
		if password == "" {
			if password, err = promptPassword("New password: "); err != nil {
				return err
			}
		}
		res = s.mgr.ResetPassword(ctx, password)
	case "abandon":
		if err := s.mgr.AbandonReset(); err != nil {
			return err
		}
		fmt.Println("Password reset abandoned")
		return nil
	default:
		return fmt.Errorf("unknown reset step %q", opts.Step)
	}
	if !res.Success {
		return fmt.Errorf("reset %s failed: %s", opts.Step, res.Message)
	}
	fmt.Println(res.Message)
	if stage, ok := s.mgr.ResetPending(); ok {
		fmt.Printf("Pending reset ticket: %s\n", stage)
	}
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
