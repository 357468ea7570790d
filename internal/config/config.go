package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	SendBuffer int    `mapstructure:"send_buffer"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleTimeout      time.Duration `mapstructure:"stale_timeout"`
	PresenceThreshold time.Duration `mapstructure:"presence_threshold"`
	CallMaxAge        time.Duration `mapstructure:"call_max_age"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	CallRateLimit     int           `mapstructure:"call_rate_limit"`
	CallRateWindow    time.Duration `mapstructure:"call_rate_window"`
	// BackpressurePolicy is "strict" or "tolerant".
	BackpressurePolicy string `mapstructure:"backpressure_policy"`

	ICEServers []string `mapstructure:"ice_servers"`

	NatsURL           string `mapstructure:"nats_url"`
	NatsSubjectPrefix string `mapstructure:"nats_subject_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("heartbeat_interval", "45s")
	v.SetDefault("stale_timeout", "5m")
	v.SetDefault("presence_threshold", "1m")
	v.SetDefault("call_max_age", "10m")
	v.SetDefault("sweep_interval", "60s")
	v.SetDefault("call_rate_limit", 5)
	v.SetDefault("call_rate_window", "10s")
	v.SetDefault("backpressure_policy", "strict")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject_prefix", "callhub")
}

// Load reads config/config.<CONFIG_ENV>.yaml; SIGNAL_* variables override it.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit path. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, d := range map[string]time.Duration{
		"heartbeat_interval": c.HeartbeatInterval,
		"stale_timeout":      c.StaleTimeout,
		"presence_threshold": c.PresenceThreshold,
		"call_max_age":       c.CallMaxAge,
		"sweep_interval":     c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", name, d)
		}
	}
	if c.BackpressurePolicy != "strict" && c.BackpressurePolicy != "tolerant" {
		return fmt.Errorf("config: unknown backpressure_policy %q", c.BackpressurePolicy)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}
