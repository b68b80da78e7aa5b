package config

import "time"

// Config holds server and call-coordination configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// AppKey identifies this deployment towards the application backend
	// when requesting RTC tokens and user mappings.
	AppKey string `mapstructure:"app_key" yaml:"app_key"`

	// RingTimeout bounds how long an unanswered incoming invite stays valid
	// on the invitee side. NoAnswerTimeout is the inviter-side counterpart.
	RingTimeout     time.Duration `mapstructure:"ring_timeout" yaml:"ring_timeout"`
	NoAnswerTimeout time.Duration `mapstructure:"no_answer_timeout" yaml:"no_answer_timeout"`

	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// LiveKitConfig holds credentials for minting LiveKit join tokens.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "wirecall.db",
		JWTSecret:         "dev-secret-change-me",
		JWTIssuer:         "wirecall",
		JWTAudience:       "wirecall-clients",
		AppKey:            "wirecall-dev",
		RingTimeout:       30 * time.Second,
		NoAnswerTimeout:   30 * time.Second,
		LiveKit: LiveKitConfig{
			Enabled:   false,
			WSURL:     "ws://localhost:7880",
			APIKey:    "devkey",
			APISecret: "secret",
		},
	}
}
