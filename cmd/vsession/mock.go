package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vmock"
)

// MockOptions configures the mock mode.
type MockOptions struct {
	ListenAddr string
	Password   string
	Domain     string
}

// MockResult contains information about the running mock backend.
type MockResult struct {
	URL     string
	Backend *vmock.Backend
	Users   []vdef.User
}

// RunMock runs a fake backend with one account per role.
func RunMock(ctx context.Context, opts *MockOptions) error {
	return RunMockWithResult(ctx, opts, nil)
}

// RunMockWithResult runs the fake backend and optionally reports startup info.
func RunMockWithResult(ctx context.Context, opts *MockOptions, resultCh chan<- *MockResult) error {
	if len(opts.Password) < 8 {
		return fmt.Errorf("demo password must have at least 8 characters")
	}
	backend := vmock.NewBackend()
	var users []vdef.User
	for i, role := range vdef.Roles {
		u := vdef.User{
			Role:         role,
			AccountID:    fmt.Sprintf("demo-%d", i+1),
			CompanyCodes: []string{"C001"},
			Email:        fmt.Sprintf("%s@%s", role, opts.Domain),
			Name:         "Demo " + role.String(),
		}
		backend.AddUser(u, opts.Password)
		users = append(users, u)
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           backend.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	url := "http://" + ln.Addr().String()
	fmt.Printf("Mock backend listening on %s\n", url)
	for _, u := range users {
		fmt.Printf("  %-12s %s\n", u.Role, u.Email)
	}
	if resultCh != nil {
		resultCh <- &MockResult{URL: url, Backend: backend, Users: users}
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
