// Package config loads server settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string

	// PolicyFile overrides the built-in vacation-type catalog.
	PolicyFile string

	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// EmergencyCatchUp lets the scheduler run a missed yearly reset on any
	// day of the year instead of only on 1 January.
	EmergencyCatchUp   bool
	EmergencyAllowance int

	AllowedOrigins []string
	MaxImportRows  int

	// Demo mounts the scenario loaders, which wipe the database.
	Demo bool
}

func Default() Config {
	return Config{
		Port:               8080,
		DBPath:             "leave.db",
		LogLevel:           "info",
		LogFormat:          "text",
		SchedulerEnabled:   true,
		SchedulerInterval:  time.Hour,
		EmergencyCatchUp:   true,
		EmergencyAllowance: 12,
		AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		MaxImportRows:      5000,
	}
}

// Load reads envFile (if present; "" means ".env"), then LEAVE_* variables,
// then args. Parse problems and invalid values are returned together.
func Load(envFile string, args []string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()
	var errs []error

	cfg.Port = envInt("LEAVE_PORT", cfg.Port, &errs)
	cfg.DBPath = envString("LEAVE_DB_PATH", cfg.DBPath)
	cfg.LogLevel = envString("LEAVE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("LEAVE_LOG_FORMAT", cfg.LogFormat)
	cfg.PolicyFile = envString("LEAVE_POLICY_FILE", cfg.PolicyFile)
	cfg.SchedulerEnabled = envBool("LEAVE_SCHEDULER_ENABLED", cfg.SchedulerEnabled, &errs)
	cfg.SchedulerInterval = envDuration("LEAVE_SCHEDULER_INTERVAL", cfg.SchedulerInterval, &errs)
	cfg.EmergencyCatchUp = envBool("LEAVE_EMERGENCY_CATCHUP", cfg.EmergencyCatchUp, &errs)
	cfg.EmergencyAllowance = envInt("LEAVE_EMERGENCY_ALLOWANCE", cfg.EmergencyAllowance, &errs)
	if v, ok := os.LookupEnv("LEAVE_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(v)
	}
	cfg.MaxImportRows = envInt("LEAVE_MAX_IMPORT_ROWS", cfg.MaxImportRows, &errs)
	cfg.Demo = envBool("LEAVE_DEMO", cfg.Demo, &errs)

	fs := flag.NewFlagSet("leave-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.StringVar(&cfg.PolicyFile, "policies", cfg.PolicyFile, "vacation-type catalog file (YAML or JSON)")
	fs.BoolVar(&cfg.SchedulerEnabled, "scheduler", cfg.SchedulerEnabled, "run accrual and emergency reset automatically")
	fs.DurationVar(&cfg.SchedulerInterval, "scheduler-interval", cfg.SchedulerInterval, "maintenance check interval")
	fs.BoolVar(&cfg.Demo, "demo", cfg.Demo, "enable demo scenario loading (resets the database)")
	if err := fs.Parse(args); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	if c.SchedulerEnabled && c.SchedulerInterval < time.Second {
		errs = append(errs, fmt.Errorf("scheduler interval %s is too short", c.SchedulerInterval))
	}
	if c.EmergencyAllowance <= 0 {
		errs = append(errs, fmt.Errorf("emergency allowance %d must be positive", c.EmergencyAllowance))
	}
	if c.MaxImportRows <= 0 {
		errs = append(errs, fmt.Errorf("max import rows %d must be positive", c.MaxImportRows))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	v := envString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func envBool(key string, def bool, errs *[]error) bool {
	v := envString(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := envString(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
