package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string   `mapstructure:"JWT_SECRET"`
	TokenTTLHours   int      `mapstructure:"TOKEN_TTL_HOURS"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	SMTPAddr        string   `mapstructure:"SMTP_ADDR"`
	SMTPFrom        string   `mapstructure:"SMTP_FROM"`
	NotifyRecipient string   `mapstructure:"NOTIFY_RECIPIENT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL_HOURS", 24)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SMTP_FROM", "noreply@medleads.local")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("TOKEN_TTL_HOURS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("SMTP_ADDR")
	v.BindEnv("SMTP_FROM")
	v.BindEnv("NOTIFY_RECIPIENT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
		log.Println("WARNING: JWT_SECRET not set; using an insecure development secret.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a real JWT secret is mandatory, and notification delivery needs an SMTP
// endpoint when a recipient is configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.TokenTTLHours <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive, got %d", c.TokenTTLHours)
	}
	if c.IsProduction() && c.NotifyRecipient != "" && c.SMTPAddr == "" {
		return fmt.Errorf("SMTP_ADDR is required when NOTIFY_RECIPIENT is set in production")
	}
	return nil
}
