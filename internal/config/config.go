package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	ThreatIntel ThreatIntelConfig
	AbuseProxy  AbuseProxyConfig
	Risk        RiskConfig
}

type AppConfig struct {
	Env  string
	Port int
	Host string
}

type ThreatIntelConfig struct {
	VirusTotalKey string
	OTXKey        string
	ThreatFoxKey  string
	URLhausKey    string
	CacheTTL      time.Duration
	Timeout       time.Duration
}

// AbuseProxyConfig describes both sides of the companion proxy: the engine's
// client URL and the proxy process's own listen port and upstream credential.
type AbuseProxyConfig struct {
	URL          string
	Port         int
	AbuseIPDBKey string
	RateLimit    int
}

type RiskConfig struct {
	// WeightsFile optionally points to a YAML weight table overriding the
	// built-in defaults.
	WeightsFile string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/etc/threatlens")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	// Set defaults
	setDefaults()

	// Try to read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("Error reading config file", "error", err)
		}
	}

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetInt("APP_PORT"),
			Host: viper.GetString("APP_HOST"),
		},
		ThreatIntel: ThreatIntelConfig{
			VirusTotalKey: viper.GetString("VIRUSTOTAL_API_KEY"),
			OTXKey:        viper.GetString("OTX_API_KEY"),
			ThreatFoxKey:  viper.GetString("THREATFOX_API_KEY"),
			URLhausKey:    viper.GetString("URLHAUS_API_KEY"),
			CacheTTL:      viper.GetDuration("THREAT_INTEL_CACHE_TTL"),
			Timeout:       viper.GetDuration("THREAT_INTEL_TIMEOUT"),
		},
		AbuseProxy: AbuseProxyConfig{
			URL:          viper.GetString("ABUSE_PROXY_URL"),
			Port:         viper.GetInt("ABUSE_PROXY_PORT"),
			AbuseIPDBKey: viper.GetString("ABUSEIPDB_API_KEY"),
			RateLimit:    viper.GetInt("ABUSE_PROXY_RATE_LIMIT"),
		},
		Risk: RiskConfig{
			WeightsFile: viper.GetString("RISK_WEIGHTS_FILE"),
		},
	}

	return config, nil
}

func bindEnvVars() {
	// App
	viper.BindEnv("APP_ENV")
	viper.BindEnv("APP_PORT")
	viper.BindEnv("APP_HOST")

	// Threat intel providers
	viper.BindEnv("VIRUSTOTAL_API_KEY")
	viper.BindEnv("OTX_API_KEY")
	viper.BindEnv("THREATFOX_API_KEY")
	viper.BindEnv("URLHAUS_API_KEY")
	viper.BindEnv("THREAT_INTEL_CACHE_TTL")
	viper.BindEnv("THREAT_INTEL_TIMEOUT")

	// AbuseIPDB companion proxy
	viper.BindEnv("ABUSE_PROXY_URL")
	viper.BindEnv("ABUSE_PROXY_PORT")
	viper.BindEnv("ABUSEIPDB_API_KEY")
	viper.BindEnv("ABUSE_PROXY_RATE_LIMIT")

	// Risk scoring
	viper.BindEnv("RISK_WEIGHTS_FILE")
}

func setDefaults() {
	// App defaults
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_HOST", "0.0.0.0")

	// Threat intel defaults
	viper.SetDefault("THREAT_INTEL_CACHE_TTL", 15*time.Minute)
	viper.SetDefault("THREAT_INTEL_TIMEOUT", 15*time.Second)

	// Companion proxy defaults
	viper.SetDefault("ABUSE_PROXY_URL", "http://localhost:3005")
	viper.SetDefault("ABUSE_PROXY_PORT", 3005)
	viper.SetDefault("ABUSE_PROXY_RATE_LIMIT", 60)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func SetupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
