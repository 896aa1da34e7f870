package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	mode := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var err error
	switch mode {
	case "login":
		err = runLoginMode(ctx, args)
	case "logout":
		err = runLogoutMode(ctx, args)
	case "me":
		err = runMeMode(ctx, args)
	case "register":
		err = runRegisterMode(ctx, args)
	case "reset":
		err = runResetMode(ctx, args)
	case "serve":
		err = runServeMode(ctx, args)
	case "mock":
		err = runMockMode(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: vsession <mode> [options]

Modes:
  login      Sign in and store the session on this machine
  logout     End the stored session
  me         Validate the stored session and print the signed-in user
  register   Create an account
  reset      Run a password reset step (request, verify, set, abandon)
  serve      Serve the route table behind the guard for the stored session
  mock       Run a fake storefront backend for local testing

Run 'vsession <mode> -h' for mode-specific options.
Options may also come from a TOML profile (-config or VSESSION_CONFIG) and
VSESSION_* environment variables.
`)
}

func runLoginMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	opts := &LoginOptions{}
	opts.Common.register(fs)
	fs.StringVar(&opts.Email, "email", getenv("VSESSION_EMAIL", ""), "Account email")
	fs.StringVar(&opts.Password, "password", getenv("VSESSION_PASSWORD", ""), "Password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := RunLogin(ctx, opts)
	return err
}

func runLogoutMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunLogout(ctx, opts)
}

func runMeMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("me", flag.ExitOnError)
	opts := &CommonOptions{}
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, err := RunMe(ctx, opts)
	return err
}

func runRegisterMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	opts := &RegisterOptions{}
	opts.Common.register(fs)
	fs.StringVar(&opts.Email, "email", getenv("VSESSION_EMAIL", ""), "Account email")
	fs.StringVar(&opts.Password, "password", getenv("VSESSION_PASSWORD", ""), "Password (prompted when empty)")
	fs.StringVar(&opts.Name, "name", "", "Display name")
	fs.StringVar(&opts.CompanyCode, "company", "", "Company code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunRegister(ctx, opts)
}

func runResetMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "reset runs one step of the password reset; the ticket is kept in the session store between steps.\n\n")
		fs.PrintDefaults()
	}
	opts := &ResetOptions{}
	opts.Common.register(fs)
	fs.StringVar(&opts.Step, "step", "request", "Step: request, verify, set, abandon")
	fs.StringVar(&opts.Email, "email", getenv("VSESSION_EMAIL", ""), "Account email (request)")
	fs.StringVar(&opts.Code, "code", "", "Emailed verification code (verify)")
	fs.StringVar(&opts.Password, "password", getenv("VSESSION_PASSWORD", ""), "New password (set, prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunReset(ctx, opts)
}

func runServeMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	opts := &ServeOptions{}
	opts.Common.register(fs)
	fs.StringVar(&opts.ListenAddr, "listen", getenv("VSESSION_LISTEN", "127.0.0.1:8080"), "Address to listen on")
	fs.DurationVar(&opts.Watch, "watch", getenvDuration("VSESSION_WATCH", 0), "Revalidate the session at this interval (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunServe(ctx, opts)
}

func runMockMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mock", flag.ExitOnError)
	opts := &MockOptions{}
	fs.StringVar(&opts.ListenAddr, "listen", getenv("VSESSION_MOCK_LISTEN", "127.0.0.1:8090"), "Address to listen on")
	fs.StringVar(&opts.Password, "password", getenv("VSESSION_MOCK_PASSWORD", "password123"), "Password of the demo accounts")
	fs.StringVar(&opts.Domain, "domain", "example.com", "Email domain of the demo accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunMock(ctx, opts)
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}
