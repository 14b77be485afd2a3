package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/TimerPipe/internal/api"
	"github.com/BTreeMap/TimerPipe/internal/notify"
	"github.com/BTreeMap/TimerPipe/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TimerPipe state data
	DefaultStateDir = "/var/lib/timerpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "timerpipe.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}

	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping TimerPipe with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)

	server := api.NewServer(st, apiOpts...)
	defer server.Close()
	if err := server.Run(); err != nil {
		slog.Error("TimerPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TimerPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	APIAddr     string
	Heartbeat   string
	SMSEnabled  bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	apiAddr   *string
	heartbeat *string
	sms       *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("TIMERPIPE_STATE_DIR"),
		APIAddr:     os.Getenv("API_ADDR"),
		Heartbeat:   os.Getenv("HEARTBEAT_INTERVAL"),
		SMSEnabled:  os.Getenv("SMS_NOTIFICATIONS") == "true",
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TIMERPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("TIMERPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TIMERPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"HEARTBEAT_INTERVAL", config.Heartbeat,
		"SMS_NOTIFICATIONS", config.SMSEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for TimerPipe data (overrides $TIMERPIPE_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the store (overrides $DATABASE_URL)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		heartbeat: flag.String("heartbeat", config.Heartbeat, "sequencer tick interval, e.g. 100ms (overrides $HEARTBEAT_INTERVAL)"),
		sms:       flag.Bool("sms", config.SMSEnabled, "deliver notifications as SMS via Twilio (overrides $SMS_NOTIFICATIONS)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"heartbeat", *flags.heartbeat,
		"sms", *flags.sms)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildStore opens the storage backend matching the configured DSN
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.heartbeat != "" {
		if d, err := time.ParseDuration(*flags.heartbeat); err == nil && d > 0 {
			apiOpts = append(apiOpts, api.WithHeartbeat(d))
		} else {
			slog.Warn("Ignoring invalid heartbeat interval", "heartbeat", *flags.heartbeat)
		}
	}
	if *flags.sms {
		notifier, err := notify.NewTwilioNotifier()
		if err != nil {
			slog.Warn("SMS notifications requested but Twilio is not configured", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithNotifier(notifier))
		}
	}
	return apiOpts
}
