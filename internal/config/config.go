package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type OfferRate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

// Peer configures the participant process.
type Peer struct {
	SignalURL     string   `mapstructure:"signal_url"`
	ID            string   `mapstructure:"id"`
	ICEServers    []string `mapstructure:"ice_servers"`
	BroadcastGain float64  `mapstructure:"broadcast_gain"`
	EventBuffer   int      `mapstructure:"event_buffer"`
	ToneHz        float64  `mapstructure:"tone_hz"`
	DenyDevices   bool     `mapstructure:"deny_devices"`
	MetricsAddr   string   `mapstructure:"metrics_addr"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	OfferRate  OfferRate     `mapstructure:"offer_rate"`
	Peer       Peer          `mapstructure:"peer"`
}

var (
	ErrInvalidPort = errors.New("port must be positive")
	ErrGain        = errors.New("peer.broadcast_gain must be greater than 1")
	ErrNoPeerID    = errors.New("peer.id is required")
	ErrNoSignalURL = errors.New("peer.signal_url is required")
)

// Flags returns the command line flags understood by Load. Flag names map
// to config keys through flagKeys.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("mode", "", "gin mode: debug or release")
	fs.Int("port", 0, "broker listen port")
	fs.String("log-level", "", "zerolog level")
	fs.String("id", "", "local peer id, sanitized before use")
	fs.String("signal-url", "", "broker websocket url")
	fs.Float64("gain", 0, "broadcast gain, > 1")
	fs.Bool("deny-devices", false, "refuse capture requests, for testing")
	fs.String("metrics-addr", "", "listen address of the peer metrics endpoint")
	return fs
}

var flagKeys = map[string]string{
	"mode":         "mode",
	"port":         "port",
	"log-level":    "log_level",
	"id":           "peer.id",
	"signal-url":   "peer.signal_url",
	"gain":         "peer.broadcast_gain",
	"deny-devices": "peer.deny_devices",
	"metrics-addr": "peer.metrics_addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "meshcall-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("offer_rate.limit", 20)
	v.SetDefault("offer_rate.interval", "10s")
	v.SetDefault("peer.signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("peer.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("peer.broadcast_gain", 2.0)
	v.SetDefault("peer.event_buffer", 32)
	v.SetDefault("peer.tone_hz", 440.0)
	v.SetDefault("peer.deny_devices", false)
	v.SetDefault("peer.metrics_addr", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then MESHCALL_* environment
// variables, then the flags in fs that were set explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("MESHCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

// Validate checks the settings shared by both binaries.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return ErrInvalidPort
	}
	return nil
}

// ValidatePeer checks the settings the participant process needs.
func (c *Config) ValidatePeer() error {
	if c.Peer.ID == "" {
		return ErrNoPeerID
	}
	if c.Peer.SignalURL == "" {
		return ErrNoSignalURL
	}
	if c.Peer.BroadcastGain <= 1.0 {
		return ErrGain
	}
	return nil
}

// SetupLogging installs the console writer and the global level.
func SetupLogging(level string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return fmt.Errorf("log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
