package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/mode"
)

// EnvPrefix prefixes every environment override, e.g. NODEPROV_LOG_LEVEL.
const EnvPrefix = "NODEPROV"

type Service struct {
	Name      string
	ExecStart string
	UnitDir   string
}

type Config struct {
	StatePath      string
	LogLevel       zerolog.Level
	Mode           mode.Mode
	NodeType       string
	Packages       []string
	Service        Service
	CommandTimeout time.Duration
}

// Layout returns the layout derived from the configured mode.
func (c Config) Layout() mode.Layout {
	return mode.LayoutOf(c.Mode)
}

// NewViper returns a viper instance with defaults and environment bindings.
// When configFile is non-empty it is read as well.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("state_path", provision.DefaultStatePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("mode", "standard")
	v.SetDefault("node_type", "full")
	v.SetDefault("packages", []string{"ca-certificates", "curl"})
	v.SetDefault("service.name", "node")
	v.SetDefault("service.exec_start", "/usr/local/bin/node run")
	v.SetDefault("service.unit_dir", "/etc/systemd/system")
	v.SetDefault("command_timeout", "10m")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the configuration.
func FromViper(v *viper.Viper) (Config, error) {
	level := zerolog.InfoLevel
	if s := v.GetString("log_level"); s != "" {
		l, err := zerolog.ParseLevel(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid log_level %q: %w", s, err)
		}
		level = l
	}

	m, err := mode.Parse(v.GetString("mode"), v.GetString("data_dir"), v.GetString("service_user"))
	if err != nil {
		return Config{}, err
	}

	timeout := v.GetDuration("command_timeout")
	if timeout <= 0 {
		return Config{}, fmt.Errorf("command_timeout must be positive")
	}

	cfg := Config{
		StatePath: v.GetString("state_path"),
		LogLevel:  level,
		Mode:      m,
		NodeType:  v.GetString("node_type"),
		Packages:  v.GetStringSlice("packages"),
		Service: Service{
			Name:      v.GetString("service.name"),
			ExecStart: v.GetString("service.exec_start"),
			UnitDir:   v.GetString("service.unit_dir"),
		},
		CommandTimeout: timeout,
	}
	if cfg.StatePath == "" {
		return Config{}, fmt.Errorf("state_path must not be empty")
	}
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service.name must not be empty")
	}
	return cfg, nil
}
