package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLoanConfig_Defaults(t *testing.T) {
	t.Setenv("LIBRARYDESK_LOAN_DAYS", "")
	t.Setenv("LIBRARYDESK_EXTENSION_DAYS", "")
	t.Setenv("LIBRARYDESK_MAINTENANCE_STICKY", "")

	cfg := LoadLoanConfig()

	assert.Equal(t, 14*24*time.Hour, cfg.LoanPeriod)
	assert.Equal(t, 7*24*time.Hour, cfg.ExtensionPeriod)
	assert.True(t, cfg.MaintenanceSticky)
}

func TestLoadLoanConfig_Overrides(t *testing.T) {
	t.Setenv("LIBRARYDESK_LOAN_DAYS", "21")
	t.Setenv("LIBRARYDESK_EXTENSION_DAYS", "bogus")
	t.Setenv("LIBRARYDESK_MAINTENANCE_STICKY", "false")

	cfg := LoadLoanConfig()

	assert.Equal(t, 21*24*time.Hour, cfg.LoanPeriod)
	assert.Equal(t, 7*24*time.Hour, cfg.ExtensionPeriod)
	assert.False(t, cfg.MaintenanceSticky)
}

func TestLoadAuthConfig_TTL(t *testing.T) {
	t.Setenv("LIBRARYDESK_JWT_SECRET", "s3cret")
	t.Setenv("LIBRARYDESK_JWT_ISSUER", "")
	t.Setenv("LIBRARYDESK_JWT_TTL_HOURS", "2")

	cfg := LoadAuthConfig()

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "librarydesk", cfg.JWTIssuer)
	assert.Equal(t, 2*time.Hour, cfg.JWTDuration)
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("LIBRARYDESK_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LIBRARYDESK_SYNC_ADDR", "")
	t.Setenv("LIBRARYDESK_NOTIFY_ADDR", "")
	t.Setenv("LIBRARYDESK_REMINDER_MINUTES", "15")
	t.Setenv("LIBRARYDESK_REMINDER_WINDOW_HOURS", "-3")
	t.Setenv("LIBRARYDESK_ALLOWED_ORIGINS", " https://desk.example.org, ,http://localhost:5173")

	cfg := LoadServerConfig()

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, ":7070", cfg.SyncAddr)
	assert.Equal(t, ":9091", cfg.NotifyAddr)
	assert.Equal(t, 15*time.Minute, cfg.ReminderInterval)
	assert.Equal(t, 48*time.Hour, cfg.ReminderWindow)
	assert.Equal(t, []string{"https://desk.example.org", "http://localhost:5173"}, cfg.AllowedOrigins)
}
