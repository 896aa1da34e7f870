package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/viicommerce/vsession/vauth"
	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vguard"
)

// ServeOptions configures the serve mode.
type ServeOptions struct {
	Common     CommonOptions
	ListenAddr string
	Watch      time.Duration
}

// ServeResult contains information about the running server.
type ServeResult struct {
	Addr  string     // The actual listening address
	State vdef.State // The session state after startup validation
}

// RunServe serves the route table behind the guard until ctx is done.
func RunServe(ctx context.Context, opts *ServeOptions) error {
	return RunServeWithResult(ctx, opts, nil)
}

// RunServeWithResult serves and optionally reports startup info once the
// stored session has been validated.
func RunServeWithResult(ctx context.Context, opts *ServeOptions, resultCh chan<- *ServeResult) error {
	s, err := openSession(&opts.Common)
	if err != nil {
		return err
	}
	defer s.Close()

	homes, err := s.profile.homes()
	if err != nil {
		return err
	}
	routes, err := s.profile.routes()
	if err != nil {
		return err
	}
	delay, err := s.profile.loginDelay()
	if err != nil {
		return err
	}

	stopFollow := vguard.Follow(s.mgr, vguard.NavigatorFunc(func(path string) {
		fmt.Printf("Navigate: %s\n", path)
	}), vguard.Options{Homes: homes, LoginDelay: delay})
	defer stopFollow()

	guard := vguard.New(s.mgr, homes)
	r := chi.NewRouter()
	r.Get("/_session", sessionHandler(s.mgr))
	guard.Mount(r, routes, pageHandler(s.mgr))

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	// Pages answer 503 until the stored session has been validated.
	if err := s.mgr.Start(ctx); err != nil {
		srv.Close()
		return err
	}
	state, user := s.mgr.Snapshot()
	addr := ln.Addr().String()
	fmt.Printf("Serving on %s as %s\n", addr, user)

	if resultCh != nil {
		resultCh <- &ServeResult{Addr: addr, State: state}
	}
	if opts.Watch > 0 {
		go s.mgr.Watch(ctx, opts.Watch)
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

func pageHandler(mgr *vauth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s for %s\n", r.URL.Path, mgr.User())
	}
}

type sessionInfo struct {
	State string     `json:"state"`
	User  *vdef.User `json:"user,omitempty"`
}

func sessionHandler(mgr *vauth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, user := mgr.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sessionInfo{State: state.String(), User: user})
	}
}
