// Package config loads pdfr's settings from the environment (optionally via a
// .env file) and sets up the application logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Config contains all of the pipeline settings. Command line flags override
// these per invocation.
type Config struct {
	Renderer      string // "pdfium" or "fitz"
	MaxDimension  int    // upper bound for a requested render dimension
	DPI           int    // default render resolution
	Quality       int    // default JPEG quality
	Format        string // default output format
	WatchInterval int    // watch mode scan interval, seconds
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// Setup loads configuration and returns the Config and Logger
func Setup() (Config, *slog.Logger) {
	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("pdfr.env")

	logger := setupLogging()
	Logger = logger

	cfg := Config{}
	cfg.Renderer = getEnv("PDFR_RENDERER", "pdfium")
	cfg.MaxDimension = getEnvInt("PDFR_MAX_DIM", 16384)
	cfg.DPI = getEnvInt("PDFR_DPI", 300)
	cfg.Quality = getEnvInt("PDFR_QUALITY", 92)
	cfg.Format = getEnv("PDFR_FORMAT", "jpeg")
	cfg.WatchInterval = getEnvInt("PDFR_WATCH_INTERVAL", 10)

	logger.Debug("Configuration loaded",
		"renderer", cfg.Renderer,
		"maxDimension", cfg.MaxDimension,
		"dpi", cfg.DPI,
		"quality", cfg.Quality,
		"format", cfg.Format)

	return cfg, logger
}

// Validate checks the loaded settings for values the pipeline cannot work with.
func (c Config) Validate() error {
	if c.Renderer != "pdfium" && c.Renderer != "fitz" {
		return fmt.Errorf("PDFR_RENDERER must be \"pdfium\" or \"fitz\", got %q", c.Renderer)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("PDFR_MAX_DIM must be positive, got %d", c.MaxDimension)
	}
	if c.DPI <= 0 {
		return fmt.Errorf("PDFR_DPI must be positive, got %d", c.DPI)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("PDFR_QUALITY must be in [1,100], got %d", c.Quality)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("PDFR_WATCH_INTERVAL must be positive, got %d", c.WatchInterval)
	}
	return nil
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "stderr")
	var logWriter io.Writer

	switch logOutput {
	case "stdout":
		logWriter = os.Stdout
	case "stderr":
		logWriter = os.Stderr
	default:
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "pdfr.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stderr
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stderr
			} else {
				logWriter = logFile
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
