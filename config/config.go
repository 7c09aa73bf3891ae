package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/mrexodia/app-launcher/launcher"
)

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = "launcher.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// WindowConfig sizes the application window
type WindowConfig struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// Config represents launcher.yaml
type Config struct {
	Command           string            `yaml:"command,omitempty"`
	PortFlag          *string           `yaml:"port_flag,omitempty"` // nil means platform default, "" means positional
	Workdir           string            `yaml:"workdir,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"`
	NewConsole        *bool             `yaml:"new_console,omitempty"` // nil means true on Windows
	LogDir            string            `yaml:"log_dir,omitempty"`
	FailurePolicy     string            `yaml:"failure_policy,omitempty"` // "ignore" or "escalate"
	PollInterval      string            `yaml:"poll_interval,omitempty"`
	PortMin           int               `yaml:"port_min,omitempty"`
	PortMax           int               `yaml:"port_max,omitempty"`
	PortAttempts      int               `yaml:"port_attempts,omitempty"`
	FailureWebhookURL string            `yaml:"failure_webhook_url,omitempty"`
	Window            WindowConfig      `yaml:"window,omitempty"`
	MetadataDir       string            `yaml:"metadata_dir,omitempty"`
	LockFile          string            `yaml:"lock_file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML configuration file. A missing file yields
// the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Relative paths in the file are relative to the file itself.
	if cfg.Workdir != "" && !filepath.IsAbs(cfg.Workdir) {
		cfg.Workdir = filepath.Join(filepath.Dir(path), cfg.Workdir)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Command == "" {
		if runtime.GOOS == "windows" {
			c.Command = "powershell.exe -NoProfile -ExecutionPolicy Bypass -File start.ps1"
		} else {
			c.Command = "sh start.sh"
		}
	}
	if c.PortFlag == nil {
		flag := "--port"
		if runtime.GOOS == "windows" {
			flag = "-Port"
		}
		c.PortFlag = &flag
	}
	if c.Workdir == "" {
		c.Workdir = "."
	}
	if c.NewConsole == nil {
		newConsole := runtime.GOOS == "windows"
		c.NewConsole = &newConsole
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = "ignore"
	}
	if c.PollInterval == "" {
		c.PollInterval = "500ms"
	}
	if c.PortMin == 0 {
		c.PortMin = 42000
	}
	if c.PortMax == 0 {
		c.PortMax = 65535
	}
	if c.PortAttempts == 0 {
		c.PortAttempts = 36
	}
	if c.Window.Width == 0 {
		c.Window.Width = 1600
	}
	if c.Window.Height == 0 {
		c.Window.Height = 960
	}
	if c.MetadataDir == "" {
		c.MetadataDir = "metadata"
	}
	if c.LockFile == "" {
		c.LockFile = ".app-launcher.lock"
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("%w: command is empty", ErrInvalid)
	}
	if c.PortMin < 1 || c.PortMax > 65535 || c.PortMin > c.PortMax {
		return fmt.Errorf("%w: port range [%d, %d]", ErrInvalid, c.PortMin, c.PortMax)
	}
	if c.PortAttempts < 1 {
		return fmt.Errorf("%w: port_attempts must be positive", ErrInvalid)
	}
	if _, err := launcher.ParseFailurePolicy(c.FailurePolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return fmt.Errorf("%w: poll_interval: %w", ErrInvalid, err)
	}
	if d <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.Window.Width < 0 || c.Window.Height < 0 {
		return fmt.Errorf("%w: window size", ErrInvalid)
	}
	return nil
}

// Interval returns the parsed poll interval.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Policy returns the parsed failure policy.
func (c *Config) Policy() launcher.FailurePolicy {
	p, _ := launcher.ParseFailurePolicy(c.FailurePolicy)
	return p
}

// UseNewConsole returns true if the backend gets its own console window.
func (c *Config) UseNewConsole() bool {
	if c.NewConsole == nil {
		return runtime.GOOS == "windows"
	}
	return *c.NewConsole
}

// Launcher returns the launcher configuration. Relative paths are resolved
// against the working directory.
func (c *Config) Launcher() launcher.Config {
	portFlag := ""
	if c.PortFlag != nil {
		portFlag = *c.PortFlag
	}
	return launcher.Config{
		Command:       c.Command,
		PortFlag:      portFlag,
		Workdir:       c.Workdir,
		Env:           c.Env,
		NewConsole:    c.UseNewConsole(),
		LogDir:        c.resolve(c.LogDir),
		FailurePolicy: c.Policy(),
	}
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return c.resolve(c.LockFile)
}

// MetadataPath returns the metadata directory.
func (c *Config) MetadataPath() string {
	return c.resolve(c.MetadataDir)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workdir, p)
}
