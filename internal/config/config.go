package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port string

	DatabaseDriver string
	DatabaseURL    string

	StripeSecret        string
	StripeWebhookSecret string
	StripePriceIDPro    string
	AppURL              string

	SupabaseURL            string
	SupabaseJWTSecret      string
	SupabaseServiceRoleKey string
	StorageBucket          string

	CORSAllowedOrigins []string

	ValidateRateLimit  int
	ValidateRateWindow time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	SentryDSN string

	LogLevel  string
	LogFormat string
	LogFile   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_driver", DriverSQLite)
	v.SetDefault("database_url", "commenta.db")
	v.SetDefault("app_url", "http://localhost:3000")
	v.SetDefault("storage_bucket", "plugin-releases")
	v.SetDefault("cors_allowed_origins", "")
	v.SetDefault("validate_rate_limit", 120)
	v.SetDefault("validate_rate_window", time.Minute)
	v.SetDefault("smtp_port", 587)
	v.SetDefault("email_from", "licencas@commenta.app")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// New reads configuration from the environment, after loading a .env file
// from the working directory when one exists.
func New() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range []string{
		"stripe_secret_key", "stripe_webhook_secret", "stripe_price_id_pro",
		"supabase_url", "supabase_jwt_secret", "supabase_service_role_key",
		"smtp_host", "smtp_username", "smtp_password", "sentry_dsn", "log_file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	driver := strings.ToLower(strings.TrimSpace(v.GetString("database_driver")))
	switch driver {
	case DriverSQLite:
	case DriverPostgres, "postgresql":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}

	dbURL := strings.TrimSpace(v.GetString("database_url"))
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if driver == DriverPostgres && !strings.HasPrefix(dbURL, "postgres") {
		return nil, errors.New("DATABASE_URL must be a postgres:// URL when DATABASE_DRIVER=postgres")
	}

	window := v.GetDuration("validate_rate_window")
	if window <= 0 {
		window = time.Minute
	}

	return &Config{
		Port:                   v.GetString("port"),
		DatabaseDriver:         driver,
		DatabaseURL:            dbURL,
		StripeSecret:           v.GetString("stripe_secret_key"),
		StripeWebhookSecret:    v.GetString("stripe_webhook_secret"),
		StripePriceIDPro:       v.GetString("stripe_price_id_pro"),
		AppURL:                 strings.TrimRight(v.GetString("app_url"), "/"),
		SupabaseURL:            strings.TrimRight(v.GetString("supabase_url"), "/"),
		SupabaseJWTSecret:      v.GetString("supabase_jwt_secret"),
		SupabaseServiceRoleKey: v.GetString("supabase_service_role_key"),
		StorageBucket:          v.GetString("storage_bucket"),
		CORSAllowedOrigins:     splitList(v.GetString("cors_allowed_origins")),
		ValidateRateLimit:      v.GetInt("validate_rate_limit"),
		ValidateRateWindow:     window,
		SMTPHost:               v.GetString("smtp_host"),
		SMTPPort:               v.GetInt("smtp_port"),
		SMTPUsername:           v.GetString("smtp_username"),
		SMTPPassword:           v.GetString("smtp_password"),
		EmailFrom:              v.GetString("email_from"),
		SentryDSN:              v.GetString("sentry_dsn"),
		LogLevel:               v.GetString("log_level"),
		LogFormat:              v.GetString("log_format"),
		LogFile:                v.GetString("log_file"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) StripeConfigured() bool {
	return c.StripeSecret != ""
}

func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func (c *Config) StorageConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceRoleKey != ""
}
