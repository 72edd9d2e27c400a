package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "commenta.db", cfg.DatabaseURL)
	assert.Equal(t, "plugin-releases", cfg.StorageBucket)
	assert.Equal(t, 120, cfg.ValidateRateLimit)
	assert.Equal(t, time.Minute, cfg.ValidateRateWindow)
	assert.False(t, cfg.StripeConfigured())
	assert.False(t, cfg.SMTPConfigured())
	assert.False(t, cfg.StorageConfigured())
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "postgresql")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/commenta")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-role")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://commenta.app, https://www.commenta.app,")
	t.Setenv("VALIDATE_RATE_WINDOW", "30s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "sk_test_123", cfg.StripeSecret)
	assert.Equal(t, "whsec_123", cfg.StripeWebhookSecret)
	assert.Equal(t, "https://project.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, []string{"https://commenta.app", "https://www.commenta.app"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.ValidateRateWindow)
	assert.True(t, cfg.StripeConfigured())
	assert.True(t, cfg.StorageConfigured())
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestNew_PostgresRequiresPostgresURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "commenta.db")

	_, err := New()
	require.Error(t, err)
}
