package utils

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads a .env file from the working directory when present.
// Variables already set in the process environment win.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] no .env file, using process environment")
		return
	}
	log.Println("[config] .env loaded")
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("LIBRARYDESK_JWT_SECRET")
	if secret == "" {
		// dev default (change for production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("LIBRARYDESK_JWT_ISSUER")
	if issuer == "" {
		issuer = "librarydesk"
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   issuer,
		JWTDuration: time.Duration(envInt("LIBRARYDESK_JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

type ServerConfig struct {
	HTTPAddr   string
	SyncAddr   string
	NotifyAddr string
	// due-date reminders go out every ReminderInterval for loans due
	// within ReminderWindow
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	// browser origins allowed on /ws; empty means same-origin only
	AllowedOrigins []string
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         envString("LIBRARYDESK_HTTP_ADDR", ":8080"),
		SyncAddr:         envString("LIBRARYDESK_SYNC_ADDR", ":7070"),
		NotifyAddr:       envString("LIBRARYDESK_NOTIFY_ADDR", ":9091"),
		ReminderInterval: time.Duration(envInt("LIBRARYDESK_REMINDER_MINUTES", 60)) * time.Minute,
		ReminderWindow:   time.Duration(envInt("LIBRARYDESK_REMINDER_WINDOW_HOURS", 48)) * time.Hour,
		AllowedOrigins:   envList("LIBRARYDESK_ALLOWED_ORIGINS"),
	}
}

type LoanConfig struct {
	LoanPeriod        time.Duration
	ExtensionPeriod   time.Duration
	MaintenanceSticky bool
}

func LoadLoanConfig() LoanConfig {
	return LoanConfig{
		LoanPeriod:        time.Duration(envInt("LIBRARYDESK_LOAN_DAYS", 14)) * 24 * time.Hour,
		ExtensionPeriod:   time.Duration(envInt("LIBRARYDESK_EXTENSION_DAYS", 7)) * 24 * time.Hour,
		MaintenanceSticky: envBool("LIBRARYDESK_MAINTENANCE_STICKY", true),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt falls back to def when the value is missing, malformed or not positive.
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

// envList splits a comma separated value, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring %s=%q, using %t", key, v, def)
		return def
	}
	return b
}
