package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

var validate = validator.New()

type Config struct {
	Feed        Feed        `yaml:"feed"`
	Notify      Notify      `yaml:"notify"`
	Keywords    Keywords    `yaml:"keywords"`
	Tags        Tags        `yaml:"tags"`
	Retailer    Retailer    `yaml:"retailer"`
	History     History     `yaml:"history"`
	Diff        Diff        `yaml:"diff"`
	Output      Output      `yaml:"output"`
	DeliveryLog DeliveryLog `yaml:"delivery_log"`
	Schedule    Schedule    `yaml:"schedule"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
}

type Feed struct {
	URL       string        `yaml:"url" validate:"required,url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

type Notify struct {
	Server   string        `yaml:"server" validate:"required,url"`
	Topic    string        `yaml:"topic" validate:"required"`
	TokenEnv string        `yaml:"token_env"`
	Pacing   time.Duration `yaml:"pacing" validate:"gte=0"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

type Keywords struct {
	Urgent []string `yaml:"urgent" validate:"dive,required"`
	Ignore []string `yaml:"ignore" validate:"dive,required"`
}

type Tags struct {
	Base   []string `yaml:"base"`
	Urgent []string `yaml:"urgent"`
}

type Retailer struct {
	Default string `yaml:"default" validate:"required"`
}

type History struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries" validate:"min=1"`
}

type Diff struct {
	FloodCap int `yaml:"flood_cap" validate:"min=1"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type DeliveryLog struct {
	Enabled bool `yaml:"enabled"`
}

type Schedule struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type Server struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// ConfigDir returns the XDG config directory for dealwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "dealwatch")
}

// DataDir returns the XDG data directory for dealwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "dealwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/dealwatch/config.yaml > ./config.yaml.
// An empty path with a nil error means no file was found and the embedded
// defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path loads the
// embedded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(DefaultConfigYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults, then validates it.
func parse(data []byte) (*Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration used when a key is absent.
func Default() *Config {
	return &Config{
		Feed: Feed{
			URL:       "https://forums.redflagdeals.com/feed/forum/9",
			UserAgent: "dealwatch/1.0 (+feed monitor)",
			Timeout:   20 * time.Second,
		},
		Notify: Notify{
			Server:  "https://ntfy.sh",
			Topic:   "rfd-hotdeals",
			Pacing:  time.Second,
			Timeout: 10 * time.Second,
		},
		Keywords: Keywords{
			Urgent: []string{"price error", "freebie", "100% off", "lava hot"},
			Ignore: []string{"sold out", "oos", "expired"},
		},
		Tags: Tags{
			Base:   []string{"money_with_wings", "canada"},
			Urgent: []string{"rotating_light", "loudspeaker"},
		},
		Retailer:    Retailer{Default: "RFD"},
		History:     History{MaxEntries: 150},
		Diff:        Diff{FloodCap: 5},
		DeliveryLog: DeliveryLog{Enabled: true},
		Schedule:    Schedule{Cron: "*/5 * * * *", Timezone: "Local"},
		Server:      Server{Port: 8000},
		Logging:     Logging{Level: "INFO", Format: "console"},
	}
}

// Validate checks the struct tags and returns a readable error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, formatFieldError(e))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	field = strings.TrimPrefix(field, "config.")

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetHistoryPath returns the history file path, defaulting to the data dir.
func (c *Config) GetHistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.GetDataDir(), "history.json")
}

// NotifyURL returns the full ntfy publish URL for the configured topic.
func (c *Config) NotifyURL() string {
	return strings.TrimRight(c.Notify.Server, "/") + "/" + strings.TrimLeft(c.Notify.Topic, "/")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
