// utils/safelog.go
// ============================================================================
// SAFE LOGGING - Masks sensitive data in production
// ============================================================================
// Transaction descriptions, counterparty names, and amounts are personal
// financial data. In production, everything that looks like an email,
// amount, IBAN, or card number is masked before it reaches the logs.
// ============================================================================

package utils

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
)

var (
	// IsProduction switches masking on.
	IsProduction = os.Getenv("GIN_MODE") == "release" ||
		os.Getenv("ENVIRONMENT") == "production" ||
		os.Getenv("ENV") == "production"

	LogLevel = getLogLevel()
)

const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func getLogLevel() int {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	amountWithCurrencyRegex = regexp.MustCompile(`\b\d+([.,]\d{1,2})?\s*(€|EUR|CHF|GBP|USD|£|\$)\b`)

	ibanRegex = regexp.MustCompile(`[A-Z]{2}\d{2}[A-Z0-9]{10,30}`)

	cardRegex = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
)

// MaskString masks sensitive data in a string when running in production.
func MaskString(input string) string {
	if !IsProduction {
		return input
	}

	result := input
	result = emailRegex.ReplaceAllString(result, "***@***")
	result = cardRegex.ReplaceAllString(result, "****-****-****-****")
	result = ibanRegex.ReplaceAllString(result, "[IBAN]")
	result = amountWithCurrencyRegex.ReplaceAllString(result, "[AMOUNT]")
	return result
}

// Debugf logs at debug level with masking applied.
func Debugf(format string, args ...any) {
	if LogLevel <= LogLevelDebug {
		log.Print("[DEBUG] " + MaskString(fmt.Sprintf(format, args...)))
	}
}

// Infof logs at info level with masking applied.
func Infof(format string, args ...any) {
	if LogLevel <= LogLevelInfo {
		log.Print("[INFO] " + MaskString(fmt.Sprintf(format, args...)))
	}
}

// Warnf logs at warn level with masking applied.
func Warnf(format string, args ...any) {
	if LogLevel <= LogLevelWarn {
		log.Print("[WARN] " + MaskString(fmt.Sprintf(format, args...)))
	}
}

// Errorf logs at error level with masking applied.
func Errorf(format string, args ...any) {
	if LogLevel <= LogLevelError {
		log.Print("[ERROR] " + MaskString(fmt.Sprintf(format, args...)))
	}
}
