package config

import (
	"fmt"
	"os"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// MerchantProfile holds the KHQR merchant fields encoded into every payload.
// All of it comes from the environment and is validated once at startup.
type MerchantProfile struct {
	BakongAccountID string
	Name            string
	City            string
	Phone           string
	TerminalLabel   string
}

func GetMerchantProfile() MerchantProfile {
	return MerchantProfile{
		BakongAccountID: os.Getenv("BAKONG_ACCOUNT_ID"),
		Name:            os.Getenv("MERCHANT_NAME"),
		City:            os.Getenv("MERCHANT_CITY"),
		Phone:           os.Getenv("MERCHANT_PHONE"),
		TerminalLabel:   os.Getenv("MERCHANT_TERMINAL_LABEL"),
	}
}

func (m MerchantProfile) Validate() error {
	if m.BakongAccountID == "" {
		return fmt.Errorf("BAKONG_ACCOUNT_ID is not set")
	}
	if m.Name == "" {
		return fmt.Errorf("MERCHANT_NAME is not set")
	}
	if len(m.Name) > 25 {
		return fmt.Errorf("MERCHANT_NAME exceeds 25 characters")
	}
	if m.City == "" {
		return fmt.Errorf("MERCHANT_CITY is not set")
	}
	if len(m.City) > 15 {
		return fmt.Errorf("MERCHANT_CITY exceeds 15 characters")
	}
	return nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func PollInterval() time.Duration    { return envDuration("POLL_INTERVAL", 5*time.Second) }
func PollGrace() time.Duration       { return envDuration("POLL_GRACE", 10*time.Second) }
func AcquirerTimeout() time.Duration { return envDuration("ACQUIRER_TIMEOUT", 3*time.Second) }
func DrainTimeout() time.Duration    { return envDuration("DRAIN_TIMEOUT", 10*time.Second) }
func SweepInterval() time.Duration   { return envDuration("SWEEP_INTERVAL", time.Minute) }
func SessionTTL() time.Duration      { return envDuration("SESSION_TTL", 15*time.Minute) }

const (
	PollWorkers         = 8
	PollQueueSize       = 64
	MaxScreenshotBytes  = 10 << 20
	ScreenshotRejectMin = 0.15
)
