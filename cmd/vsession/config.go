package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/viicommerce/vsession/vdef"
	"github.com/viicommerce/vsession/vguard"
)

// Profile is the TOML configuration file.
//
//	base_url = "https://api.example.com"
//	timeout = "15s"
//	login_delay = "300ms"
//
//	[store]
//	kind = "bolt"
//	path = "~/.config/vsession/session.db"
//
//	[homes]
//	login = "/login"
//	default = "/"
//	by_role = { admin = "/admin", client = "/shop" }
//
//	[[routes]]
//	path = "/admin"
//	roles = ["admin"]
type Profile struct {
	BaseURL    string         `toml:"base_url"`
	Timeout    string         `toml:"timeout"`
	HTTP3      bool           `toml:"http3"`
	LoginDelay string         `toml:"login_delay"`
	TicketTTL  string         `toml:"ticket_ttl"`
	Store      StoreProfile   `toml:"store"`
	Homes      HomesProfile   `toml:"homes"`
	Routes     []RouteProfile `toml:"routes"`
}

type StoreProfile struct {
	Kind string `toml:"kind"`
	Path string `toml:"path"`
}

type HomesProfile struct {
	Login   string            `toml:"login"`
	Default string            `toml:"default"`
	ByRole  map[string]string `toml:"by_role"`
}

type RouteProfile struct {
	Path   string   `toml:"path"`
	Roles  []string `toml:"roles"`
	Public bool     `toml:"public"`
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &p, nil
}

// CommonOptions are shared by every mode that talks to the backend.
type CommonOptions struct {
	ConfigPath string
	BaseURL    string
	StoreKind  string
	StorePath  string
	Timeout    time.Duration
	HTTP3      bool
	Verbose    bool

	profile *Profile
}

func (o *CommonOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", getenv("VSESSION_CONFIG", ""), "TOML profile")
	fs.StringVar(&o.BaseURL, "api", getenv("VSESSION_BASE_URL", ""), "API base URL")
	fs.StringVar(&o.StoreKind, "store", getenv("VSESSION_STORE", ""), "Session store: file, config, bolt, redis, registry")
	fs.StringVar(&o.StorePath, "store-path", getenv("VSESSION_STORE_PATH", ""), "Session store location (directory, file, redis URL or registry path)")
	fs.DurationVar(&o.Timeout, "timeout", getenvDuration("VSESSION_TIMEOUT", 0), "Request timeout")
	fs.BoolVar(&o.HTTP3, "http3", getenvBool("VSESSION_HTTP3", false), "Use HTTP/3")
	fs.BoolVar(&o.Verbose, "v", getenvBool("VSESSION_VERBOSE", false), "Log state changes and diagnostics")
}

// resolve fills unset options from the profile. Flags and environment
// variables win over the profile.
func (o *CommonOptions) resolve() (*Profile, error) {
	if o.profile != nil {
		return o.profile, nil
	}
	p := &Profile{}
	if o.ConfigPath != "" {
		var err error
		if p, err = LoadProfile(o.ConfigPath); err != nil {
			return nil, err
		}
	}

	if o.BaseURL == "" {
		o.BaseURL = p.BaseURL
	}
	if o.BaseURL == "" {
		return nil, fmt.Errorf("API base URL is required (-api, VSESSION_BASE_URL or base_url)")
	}
	if o.StoreKind == "" {
		o.StoreKind = p.Store.Kind
	}
	if o.StorePath == "" {
		o.StorePath = p.Store.Path
	}
	if o.Timeout == 0 && p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse timeout: %w", err)
		}
		o.Timeout = d
	}
	o.HTTP3 = o.HTTP3 || p.HTTP3
	o.profile = p
	return p, nil
}

func (p *Profile) loginDelay() (time.Duration, error) {
	if p.LoginDelay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.LoginDelay)
	if err != nil {
		return 0, fmt.Errorf("parse login_delay: %w", err)
	}
	return d, nil
}

func (p *Profile) ticketTTL() (time.Duration, error) {
	if p.TicketTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.TicketTTL)
	if err != nil {
		return 0, fmt.Errorf("parse ticket_ttl: %w", err)
	}
	return d, nil
}

// homes merges the profile's landing paths over vguard.DefaultHomes.
func (p *Profile) homes() (vguard.Homes, error) {
	h := vguard.DefaultHomes()
	if p.Homes.Login != "" {
		h.Login = p.Homes.Login
	}
	if p.Homes.Default != "" {
		h.Default = p.Homes.Default
	}
	for name, path := range p.Homes.ByRole {
		role, err := vdef.ParseRole(name)
		if err != nil {
			return h, fmt.Errorf("homes: %w", err)
		}
		h.ByRole[role] = path
	}
	return h, nil
}

// routes returns the profile's route table, or the storefront default.
func (p *Profile) routes() ([]vguard.Route, error) {
	if len(p.Routes) == 0 {
		return defaultRoutes(), nil
	}
	out := make([]vguard.Route, 0, len(p.Routes))
	for _, rp := range p.Routes {
		if rp.Path == "" {
			return nil, fmt.Errorf("routes: empty path")
		}
		rt := vguard.Route{Path: rp.Path, Public: rp.Public}
		for _, name := range rp.Roles {
			role, err := vdef.ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("route %s: %w", rp.Path, err)
			}
			rt.Roles = append(rt.Roles, role)
		}
		out = append(out, rt)
	}
	return out, nil
}

func defaultRoutes() []vguard.Route {
	return []vguard.Route{
		{Path: "/login", Public: true},
		{Path: "/register", Public: true},
		{Path: "/reset-password", Public: true},
		{Path: "/", Roles: nil},
		{Path: "/orders"},
		{Path: "/admin", Roles: []vdef.Role{vdef.RoleAdmin}},
		{Path: "/coordinator", Roles: []vdef.Role{vdef.RoleAdmin, vdef.RoleCoordinator}},
		{Path: "/shop", Roles: []vdef.Role{vdef.RoleClient, vdef.RoleCoordinator}},
		{Path: "/dashboard", Roles: []vdef.Role{vdef.RoleViewer, vdef.RoleAdmin}},
		{Path: "/retreads", Roles: []vdef.Role{vdef.RoleRetread, vdef.RoleAdmin}},
	}
}

// logObserver reports to the standard logger when verbose.
type logObserver struct {
	verbose bool
}

func (o logObserver) OnStateChange(from, to vdef.State, name string) {
	if o.verbose {
		log.Printf("session: %s -> %s (%s)", from, to, name)
	}
}

func (o logObserver) Logf(format string, v ...interface{}) {
	if o.verbose {
		log.Printf(format, v...)
	}
}
