package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

type config struct {
	port              string
	publicBaseURL     string
	databaseURL       string
	ownerName         string
	voice             string
	transferNumber    string
	timezone          string
	retryLimit        int
	gatherTimeoutSec  int
	repromptTimeout   int
	dialTimeoutSec    int
	engineTimeout     time.Duration
	engineMaxTokens   int
	engineTemperature float64
	azureEndpoint     string
	azureAPIKey       string
	azureDeployment   string
	azureAPIVersion   string
	openaiAPIKey      string
	openaiModel       string
}

func loadConfig() config {
	return config{
		port:              envStr("CONCIERGE_PORT", "8080"),
		publicBaseURL:     envStr("PUBLIC_BASE_URL", ""),
		databaseURL:       envStr("DATABASE_URL", "calls.db"),
		ownerName:         envStr("OWNER_NAME", "Vansh"),
		voice:             envStr("TTS_VOICE", "polly.justin"),
		transferNumber:    envStr("TRANSFER_NUMBER", ""),
		timezone:          envStr("GREETING_TIMEZONE", "America/Los_Angeles"),
		retryLimit:        envInt("NO_SPEECH_RETRY_LIMIT", 2),
		gatherTimeoutSec:  envInt("GATHER_TIMEOUT_SEC", 6),
		repromptTimeout:   envInt("REPROMPT_TIMEOUT_SEC", 5),
		dialTimeoutSec:    envInt("DIAL_TIMEOUT_SEC", 30),
		engineTimeout:     envDuration("ENGINE_TIMEOUT", 3*time.Second),
		engineMaxTokens:   envInt("ENGINE_MAX_TOKENS", 75),
		engineTemperature: envFloat("ENGINE_TEMPERATURE", 0.2),
		azureEndpoint:     envStr("AZURE_OPENAI_ENDPOINT", ""),
		azureAPIKey:       envStr("AZURE_OPENAI_KEY", ""),
		azureDeployment:   envStr("AZURE_OPENAI_DEPLOYMENT", ""),
		azureAPIVersion:   envStr("AZURE_OPENAI_API_VERSION", "2025-01-01-preview"),
		openaiAPIKey:      envStr("OPENAI_API_KEY", ""),
		openaiModel:       envStr("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

// location resolves the greeting timezone, falling back to UTC.
func (c config) location() *time.Location {
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		slog.Warn("invalid timezone, using UTC", "timezone", c.timezone, "error", err)
		return time.UTC
	}
	return loc
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}
