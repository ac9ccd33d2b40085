package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	CORS         CORSConfig
	CSRF         CSRFConfig
	SMTP         SMTPConfig
	Verification VerificationConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig is optional. An empty Host disables the issuance lock and
// the daily ceiling becomes a soft limit.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type CSRFConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type SMTPConfig struct {
	Host        string
	Port        string
	Email       string
	Password    string
	FromName    string
	FrontendURL string
}

type VerificationConfig struct {
	CodeLength              int           `yaml:"code_length"`
	OTPTTL                  time.Duration `yaml:"otp_ttl"`
	ResetTokenTTL           time.Duration `yaml:"reset_token_ttl"`
	RegistrationDailyLimit  int           `yaml:"registration_daily_limit"`
	PasswordResetDailyLimit int           `yaml:"password_reset_daily_limit"`
	StoreTimeout            time.Duration `yaml:"store_timeout"`
	IssueLockTTL            time.Duration `yaml:"issue_lock_ttl"`
	DayLocation             string        `yaml:"day_location"`
	CleanupSchedule         string        `yaml:"cleanup_schedule"`
	CleanupRetention        time.Duration `yaml:"cleanup_retention"`
	MinPasswordLength       int           `yaml:"min_password_length"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "localservices"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		CSRF: CSRFConfig{
			Secret:   getEnv("CSRF_SECRET", "change-me-csrf-secret"),
			TokenTTL: parseDuration(getEnv("CSRF_TOKEN_TTL", "2h"), 2*time.Hour),
		},
		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        getEnv("SMTP_PORT", "587"),
			Email:       getEnv("SMTP_EMAIL", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromName:    getEnv("SMTP_FROM_NAME", "Local Services"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		Verification: VerificationConfig{
			CodeLength:              parseInt(getEnv("OTP_CODE_LENGTH", "6"), 6),
			OTPTTL:                  parseDuration(getEnv("OTP_TTL", "10m"), 10*time.Minute),
			ResetTokenTTL:           parseDuration(getEnv("RESET_TOKEN_TTL", "15m"), 15*time.Minute),
			RegistrationDailyLimit:  parseInt(getEnv("OTP_REGISTRATION_DAILY_LIMIT", "5"), 5),
			PasswordResetDailyLimit: parseInt(getEnv("OTP_PASSWORD_RESET_DAILY_LIMIT", "3"), 3),
			StoreTimeout:            parseDuration(getEnv("VERIFICATION_STORE_TIMEOUT", "3s"), 3*time.Second),
			IssueLockTTL:            parseDuration(getEnv("OTP_ISSUE_LOCK_TTL", "5s"), 5*time.Second),
			DayLocation:             getEnv("OTP_DAY_LOCATION", "UTC"),
			CleanupSchedule:         getEnv("VERIFICATION_CLEANUP_SCHEDULE", "@hourly"),
			CleanupRetention:        parseDuration(getEnv("VERIFICATION_CLEANUP_RETENTION", "48h"), 48*time.Hour),
			MinPasswordLength:       parseInt(getEnv("MIN_PASSWORD_LENGTH", "8"), 8),
		},
	}

	if path := getEnv("VERIFICATION_POLICY_FILE", ""); path != "" {
		if err := config.Verification.LoadPolicyFile(path); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// LoadPolicyFile overlays non-zero fields from a YAML policy file.
func (v *VerificationConfig) LoadPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read verification policy file: %w", err)
	}
	return v.applyPolicy(data)
}

func (v *VerificationConfig) applyPolicy(data []byte) error {
	var overlay VerificationConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse verification policy: %w", err)
	}

	if overlay.CodeLength > 0 {
		v.CodeLength = overlay.CodeLength
	}
	if overlay.OTPTTL > 0 {
		v.OTPTTL = overlay.OTPTTL
	}
	if overlay.ResetTokenTTL > 0 {
		v.ResetTokenTTL = overlay.ResetTokenTTL
	}
	if overlay.RegistrationDailyLimit > 0 {
		v.RegistrationDailyLimit = overlay.RegistrationDailyLimit
	}
	if overlay.PasswordResetDailyLimit > 0 {
		v.PasswordResetDailyLimit = overlay.PasswordResetDailyLimit
	}
	if overlay.StoreTimeout > 0 {
		v.StoreTimeout = overlay.StoreTimeout
	}
	if overlay.IssueLockTTL > 0 {
		v.IssueLockTTL = overlay.IssueLockTTL
	}
	if overlay.DayLocation != "" {
		v.DayLocation = overlay.DayLocation
	}
	if overlay.CleanupSchedule != "" {
		v.CleanupSchedule = overlay.CleanupSchedule
	}
	if overlay.CleanupRetention > 0 {
		v.CleanupRetention = overlay.CleanupRetention
	}
	if overlay.MinPasswordLength > 0 {
		v.MinPasswordLength = overlay.MinPasswordLength
	}
	return nil
}

// Location resolves DayLocation, falling back to UTC.
func (v *VerificationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(v.DayLocation)
	if err != nil {
		log.Printf("Invalid OTP day location %s, using UTC", v.DayLocation)
		return time.UTC
	}
	return loc
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
