package common

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/pipewatch/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment  string                `toml:"environment" validate:"omitempty,oneof=development dev production prod"`
	Server       ServerConfig          `toml:"server"`
	Backend      BackendConfig         `toml:"backend"`
	Monitor      MonitorConfig         `toml:"monitor"`
	Logging      LoggingConfig         `toml:"logging"`
	Capabilities CapabilitiesConfig    `toml:"capabilities"`
	WebSocket    WebSocketConfig       `toml:"websocket"`
	Simulator    SimulatorConfig       `toml:"simulator"`
	Kinds        map[string]KindConfig `toml:"kinds" validate:"dive"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

// BackendConfig describes the collection backend that owns the jobs
type BackendConfig struct {
	BaseURL   string       `toml:"base_url" validate:"required,url"`
	Timeout   string       `toml:"timeout"`    // HTTP timeout per request, e.g. "30s"
	RateLimit int          `toml:"rate_limit"` // Requests per second per job kind (0 = unlimited)
	Token     string       `toml:"token"`      // Static bearer token (optional)
	OAuth2    OAuth2Config `toml:"oauth2"`
}

// OAuth2Config enables the client-credentials flow when TokenURL is set
type OAuth2Config struct {
	TokenURL     string   `toml:"token_url" validate:"omitempty,url"`
	ClientID     string   `toml:"client_id" validate:"required_with=TokenURL"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

// MonitorConfig controls the polling discipline shared by every job monitor
type MonitorConfig struct {
	PollInterval       string `toml:"poll_interval"`        // Interval between status polls while a job runs (default: "2s")
	RequestTimeout     string `toml:"request_timeout"`      // Per-poll deadline (default: "10s")
	FailureNoticeAfter int    `toml:"failure_notice_after"` // Consecutive poll failures before a monitoring notice is raised
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// CapabilitiesConfig supplies the capability grants consumed by the gate.
// Token takes precedence over Granted when both are set.
type CapabilitiesConfig struct {
	Granted     []string `toml:"granted"`      // Capability names or glob patterns, e.g. "news.*"
	Token       string   `toml:"token"`        // Signed session token carrying a "capabilities" claim
	TokenSecret string   `toml:"token_secret"` // HMAC secret for Token
}

type WebSocketConfig struct {
	UpdateThrottle string `toml:"update_throttle"` // Minimum interval between job_update pushes per kind (default: "250ms")
}

// SimulatorConfig configures the in-memory backend used by `pipewatch simulate`
type SimulatorConfig struct {
	Port        int            `toml:"port"`
	StepDelay   string         `toml:"step_delay"`    // Time spent per processed unit (default: "200ms")
	TotalUnits  int            `toml:"total_units"`   // Units per simulated job (default: 50)
	Location    string         `toml:"location"`      // Timezone for the once-per-day rule (default: "Asia/Seoul")
	OncePerDay  []string       `toml:"once_per_day"`  // Kinds limited to one completed run per calendar day
	FailAtUnits map[string]int `toml:"fail_at_units"` // Kind -> unit index at which the simulated job fails
}

// KindConfig configures a single job kind. Empty fields fall back to the
// kind's catalog defaults, so a table that only sets `schedule` stays enabled.
type KindConfig struct {
	Disabled          bool              `toml:"disabled"`
	Title             string            `toml:"title"`
	BasePath          string            `toml:"base_path" validate:"required,startswith=/"`
	UnitLabel         string            `toml:"unit_label"`
	ProducedLabel     string            `toml:"produced_label"`
	AllowFreshRestart bool              `toml:"allow_fresh_restart"`
	StartCapability   string            `toml:"start_capability"`
	StopCapability    string            `toml:"stop_capability"`
	Schedule          string            `toml:"schedule"`
	Params            map[string]any    `toml:"params"`
	Fields            map[string]string `toml:"fields"` // Backend field name -> canonical JobStatus field
}

// NewDefaultConfig creates a configuration with default values.
// Every job kind of the catalog is enabled with its default paths.
func NewDefaultConfig() *Config {
	kinds := make(map[string]KindConfig, len(models.AllJobKinds()))
	for _, spec := range models.AllJobKinds() {
		kinds[string(spec.Kind)] = KindConfig{
			Title:             spec.Title,
			BasePath:          spec.BasePath,
			UnitLabel:         spec.UnitLabel,
			ProducedLabel:     spec.ProducedLabel,
			AllowFreshRestart: spec.AllowFreshRestart,
			StartCapability:   spec.StartCapability(),
			StopCapability:    spec.StopCapability(),
		}
	}

	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Backend: BackendConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   "30s",
			RateLimit: 5,
		},
		Monitor: MonitorConfig{
			PollInterval:       "2s", // Console default cadence while a job is running
			RequestTimeout:     "10s",
			FailureNoticeAfter: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
		Capabilities: CapabilitiesConfig{
			Granted: []string{"*"}, // Local console: every command allowed unless restricted
		},
		WebSocket: WebSocketConfig{
			UpdateThrottle: "250ms",
		},
		Simulator: SimulatorConfig{
			Port:       8000,
			StepDelay:  "200ms",
			TotalUnits: 50,
			Location:   "Asia/Seoul",
			OncePerDay: []string{string(models.JobKindNews), string(models.JobKindFundNews)},
		},
		Kinds: kinds,
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. {NAME} references are then resolved
// from the environment.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyKindDefaults(config)
	applyEnvOverrides(config)

	if err := ResolveReferences(config, EnvValues(), nil); err != nil {
		return nil, fmt.Errorf("failed to resolve config references: %w", err)
	}

	return config, nil
}

// applyKindDefaults fills fields a config file left empty from the kind catalog
func applyKindDefaults(config *Config) {
	for name, kc := range config.Kinds {
		spec, ok := models.LookupJobKind(models.JobKind(name))
		if !ok {
			continue
		}
		if kc.Title == "" {
			kc.Title = spec.Title
		}
		if kc.BasePath == "" {
			kc.BasePath = spec.BasePath
		}
		if kc.UnitLabel == "" {
			kc.UnitLabel = spec.UnitLabel
		}
		if kc.ProducedLabel == "" {
			kc.ProducedLabel = spec.ProducedLabel
		}
		if kc.StartCapability == "" {
			kc.StartCapability = spec.StartCapability()
		}
		if kc.StopCapability == "" {
			kc.StopCapability = spec.StopCapability()
		}
		config.Kinds[name] = kc
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PIPEWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PIPEWATCH_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PIPEWATCH_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Backend configuration
	if baseURL := os.Getenv("PIPEWATCH_BACKEND_URL"); baseURL != "" {
		config.Backend.BaseURL = baseURL
	}
	if token := os.Getenv("PIPEWATCH_BACKEND_TOKEN"); token != "" {
		config.Backend.Token = token
	}
	if secret := os.Getenv("PIPEWATCH_OAUTH2_CLIENT_SECRET"); secret != "" {
		config.Backend.OAuth2.ClientSecret = secret
	}

	// Monitor configuration
	if interval := os.Getenv("PIPEWATCH_POLL_INTERVAL"); interval != "" {
		config.Monitor.PollInterval = interval
	}

	// Logging configuration
	if level := os.Getenv("PIPEWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PIPEWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Capabilities
	if granted := os.Getenv("PIPEWATCH_CAPABILITIES"); granted != "" {
		caps := []string{}
		for _, c := range strings.Split(granted, ",") {
			if c = strings.TrimSpace(c); c != "" {
				caps = append(caps, c)
			}
		}
		config.Capabilities.Granted = caps
	}
	if token := os.Getenv("PIPEWATCH_SESSION_TOKEN"); token != "" {
		config.Capabilities.Token = token
	}
	if secret := os.Getenv("PIPEWATCH_SESSION_SECRET"); secret != "" {
		config.Capabilities.TokenSecret = secret
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, backendURL string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if backendURL != "" {
		config.Backend.BaseURL = backendURL
	}
}

// Validate checks the final configuration. Call after all overrides are applied.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, kc := range c.Kinds {
		if _, ok := models.LookupJobKind(models.JobKind(name)); !ok {
			return fmt.Errorf("invalid configuration: unknown job kind %q", name)
		}
		if kc.Schedule != "" {
			if err := ValidateSchedule(kc.Schedule); err != nil {
				return fmt.Errorf("invalid schedule for %s: %w", name, err)
			}
		}
		for _, canonical := range kc.Fields {
			if !models.IsStatusField(canonical) {
				return fmt.Errorf("invalid field mapping for %s: %q is not a status field", name, canonical)
			}
		}
	}

	for _, d := range []struct{ name, value string }{
		{"backend.timeout", c.Backend.Timeout},
		{"monitor.poll_interval", c.Monitor.PollInterval},
		{"monitor.request_timeout", c.Monitor.RequestTimeout},
		{"websocket.update_throttle", c.WebSocket.UpdateThrottle},
		{"simulator.step_delay", c.Simulator.StepDelay},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", d.name, err)
		}
	}

	return nil
}

// EnabledKinds returns the enabled job kinds in catalog order
func (c *Config) EnabledKinds() []models.JobKind {
	var kinds []models.JobKind
	for _, spec := range models.AllJobKinds() {
		if kc, ok := c.Kinds[string(spec.Kind)]; ok && !kc.Disabled {
			kinds = append(kinds, spec.Kind)
		}
	}
	return kinds
}

// KindNames returns every configured kind name, sorted
func (c *Config) KindNames() []string {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSchedule validates a standard five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Collection jobs run for hours; sub-hourly triggers only produce "running" refusals
	parts := strings.Fields(schedule)
	if len(parts) != 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}
	if parts[0] == "*" || strings.HasPrefix(parts[0], "*/") {
		return fmt.Errorf("schedule must not trigger more than once per hour")
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses s, returning fallback when s is empty or invalid
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
