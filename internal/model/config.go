package model

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	IPFormatText = "text"
	IPFormatJSON = "json"

	DefaultAPIURL = "https://api.cloudflare.com/client/v4"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version           int           `json:"version" yaml:"version"` // fixed 0 for now
	Interval          string        `json:"interval" yaml:"interval"`
	Backoff           string        `json:"backoff" yaml:"backoff"`
	Verbose           *bool         `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Console           *bool         `json:"console,omitempty" yaml:"console,omitempty"`
	WatchConfig       *bool         `json:"watch_config,omitempty" yaml:"watch_config,omitempty"`
	Record            Record        `json:"record" yaml:"record"`
	IPSources         []IPSource    `json:"ip_sources" yaml:"ip_sources"`
	ConcurrentResolve int           `json:"concurrent_resolve" yaml:"concurrent_resolve"`
	Connectivity      *Connectivity `json:"connectivity,omitempty" yaml:"connectivity,omitempty"`
	Notify            *Notify       `json:"notify,omitempty" yaml:"notify,omitempty"`
}

// Record identifies the DNS A record kept up to date. Token and ZoneID may
// reference environment variables, e.g. $CF_API_TOKEN.
type Record struct {
	ZoneID  string `json:"zone_id" yaml:"zone_id"`
	Name    string `json:"name" yaml:"name"`
	Token   string `json:"token" yaml:"token"`
	Proxied bool   `json:"proxied" yaml:"proxied"`
	APIURL  string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
}

// IPSource is an HTTP endpoint answering the caller's public IPv4 address,
// either as plain text or as a JSON object holding it in Field.
type IPSource struct {
	URL    string `json:"url" yaml:"url"`
	Format string `json:"format" yaml:"format"` // "text" | "json"
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
}

type Connectivity struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type Notify struct {
	MaxPending int      `json:"max_pending" yaml:"max_pending"`
	Command    *Command `json:"command,omitempty" yaml:"command,omitempty"`
}

type Command struct {
	Path    string   `json:"path" yaml:"path"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Timeout string   `json:"timeout" yaml:"timeout"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	if err := out.check(); err != nil {
		return nil, err
	}

	return &out, nil
}

// LoadConfigFile is LoadConfig reading the file at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadConfig(f)
}

// check covers what the schema can't express.
func (c Config) check() error {
	var errs []error
	if _, err := ParseInterval(c.Interval); err != nil {
		errs = append(errs, fmt.Errorf("interval: %w", err))
	}
	if _, err := ParseInterval(c.Backoff); err != nil {
		errs = append(errs, fmt.Errorf("backoff: %w", err))
	}
	for idx, src := range c.IPSources {
		if _, err := ParseURL(src.URL); err != nil {
			errs = append(errs, fmt.Errorf("ip_sources[%d].url: %w", idx, err))
		}
		if src.Format == IPFormatJSON && src.Field == "" {
			errs = append(errs, fmt.Errorf("ip_sources[%d].field: required for json format", idx))
		}
	}
	if c.Record.APIURL != "" {
		if _, err := ParseURL(c.Record.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("record.api_url: %w", err))
		}
	}
	if c.Connectivity != nil {
		if _, err := ParseISODuration(c.Connectivity.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("connectivity.timeout: %w", err))
		}
	}
	if c.Notify != nil && c.Notify.Command != nil {
		if _, err := ParseISODuration(c.Notify.Command.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("notify.command.timeout: %w", err))
		}
	}
	return errors.Join(errs...)
}

// UpdateInterval is the period of the DNS record refresh.
func (c Config) UpdateInterval() time.Duration {
	d, _ := ParseInterval(c.Interval)
	return d
}

// BackoffInterval is the pause after an epoch crashed.
func (c Config) BackoffInterval() time.Duration {
	d, _ := ParseInterval(c.Backoff)
	return d
}

// BaseURL returns the Cloudflare API base URL.
func (r Record) BaseURL() (*url.URL, error) {
	if r.APIURL == "" {
		return ParseURL(DefaultAPIURL)
	}
	return ParseURL(r.APIURL)
}

func (r Record) APIToken() string {
	return os.ExpandEnv(r.Token)
}

// Redacted returns r with an inline Token replaced. A token read from the
// environment ($CF_API_TOKEN) is kept as written.
func (r Record) Redacted() Record {
	if r.Token != "" && !strings.HasPrefix(r.Token, "$") {
		r.Token = "REDACTED"
	}
	return r
}

// LogValue keeps an inline API token out of the logs.
func (c *Config) LogValue() slog.Value {
	if c == nil {
		return slog.AnyValue(nil)
	}
	type plain Config
	cp := plain(*c)
	cp.Record = c.Record.Redacted()
	return slog.AnyValue(&cp)
}

func (r Record) Zone() string {
	return os.ExpandEnv(r.ZoneID)
}

// DefaultConfig is the template written by `ddns config init`.
func DefaultConfig() Config {
	return Config{
		Version:  0,
		Interval: "PT1H",
		Backoff:  "PT15S",
		Console:  ptr(false),
		Record: Record{
			ZoneID: "$CF_ZONE_ID",
			Name:   "home.example.com",
			Token:  "$CF_API_TOKEN",
		},
		IPSources: []IPSource{
			{URL: "https://api.ipify.org", Format: IPFormatText},
			{URL: "https://ipv4.icanhazip.com", Format: IPFormatText},
			{URL: "https://api.ipify.org?format=json", Format: IPFormatJSON, Field: "ip"},
		},
		ConcurrentResolve: 2,
		Connectivity: &Connectivity{
			Enabled: true,
			Addr:    "1.1.1.1:443",
			Timeout: "PT3S",
		},
		Notify: &Notify{MaxPending: 5},
	}
}

// Get dereferences pt, returning the zero value for nil.
func Get[T any](pt *T) T {
	var zero T
	if pt == nil {
		return zero
	}
	return *pt
}

func ptr[T any](v T) *T {
	return &v
}
