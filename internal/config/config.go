// Package config resolves server settings from defaults, an optional YAML
// file, ROSTER_* environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "roster.yaml"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Config struct {
	Port string `yaml:"port" env:"ROSTER_PORT"`
	Env  string `yaml:"env" env:"ROSTER_ENV"`

	DBDriver     string `yaml:"dbDriver" env:"ROSTER_DB_DRIVER"` // pgx | postgres
	DBURL        string `yaml:"dbUrl" env:"ROSTER_DB_URL"`       // empty = in-memory store
	EnsureSchema bool   `yaml:"ensureSchema" env:"ROSTER_ENSURE_SCHEMA"`
	Seed         bool   `yaml:"seed" env:"ROSTER_SEED"`
	SeedFile     string `yaml:"seedFile" env:"ROSTER_SEED_FILE"` // empty = built-in dataset

	LogLevel string `yaml:"logLevel" env:"ROSTER_LOG_LEVEL"`
	LogDev   bool   `yaml:"logDev" env:"ROSTER_LOG_DEV"`

	CORSOrigins []string `yaml:"corsOrigins" env:"ROSTER_CORS_ORIGINS"`
	RateLimit   float64  `yaml:"rateLimit" env:"ROSTER_RATE_LIMIT"` // req/s per client, 0 = off
	RateBurst   int      `yaml:"rateBurst" env:"ROSTER_RATE_BURST"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"ROSTER_SHUTDOWN_TIMEOUT"`
}

func def() Config {
	return Config{
		Port:            "8080",
		Env:             EnvDevelopment,
		DBDriver:        "pgx",
		EnsureSchema:    true,
		LogLevel:        "info",
		RateBurst:       20,
		ShutdownTimeout: 10 * time.Second,
	}
}

func (c Config) Dev() bool { return c.Env == EnvDevelopment }

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is required"))
	}
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("env must be development, production or test, got %q", c.Env))
	}
	switch c.DBDriver {
	case "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("dbDriver must be pgx or postgres, got %q", c.DBDriver))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rateLimit must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdownTimeout must be positive"))
	}
	return errors.Join(errs...)
}

// loadYAML overlays the file onto cfg. A missing file is fine unless it was
// asked for explicitly.
func loadYAML(path string, cfg *Config, explicit bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration; args excludes the program name.
func Load(args []string) (Config, error) {
	fl := def()
	fs := flag.NewFlagSet("roster", flag.ContinueOnError)
	path := fs.String("config", DefaultFile, "Path to YAML config")
	fs.StringVar(&fl.Port, "port", fl.Port, "HTTP port")
	fs.StringVar(&fl.Env, "env", fl.Env, "development | production | test")
	fs.StringVar(&fl.DBDriver, "db-driver", fl.DBDriver, "Postgres driver (pgx/postgres)")
	fs.StringVar(&fl.DBURL, "db", fl.DBURL, "Postgres URL (empty = in-memory)")
	fs.BoolVar(&fl.EnsureSchema, "ensure-schema", fl.EnsureSchema, "Create tables and indexes on start")
	fs.BoolVar(&fl.Seed, "seed", fl.Seed, "Insert the demo dataset on start")
	fs.StringVar(&fl.SeedFile, "seed-file", fl.SeedFile, "YAML dataset to seed (empty = built-in)")
	fs.StringVar(&fl.LogLevel, "log-level", fl.LogLevel, "debug | info | warn | error")
	fs.BoolVar(&fl.LogDev, "log-dev", fl.LogDev, "Human-readable development logs")
	origins := fs.String("cors-origins", "", "Comma-separated allowed origins (empty = any)")
	fs.Float64Var(&fl.RateLimit, "rate-limit", fl.RateLimit, "Requests per second per client (0 = off)")
	fs.IntVar(&fl.RateBurst, "rate-burst", fl.RateBurst, "Rate limiter burst")
	fs.DurationVar(&fl.ShutdownTimeout, "shutdown-timeout", fl.ShutdownTimeout, "Graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := def()
	if err := loadYAML(*path, &cfg, set["config"]); err != nil {
		return Config{}, err
	}
	if err := envdecode.StrictDecode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}

	// only flags given on the command line override
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = strings.TrimSpace(fl.Port)
		case "env":
			cfg.Env = strings.TrimSpace(fl.Env)
		case "db-driver":
			cfg.DBDriver = strings.TrimSpace(fl.DBDriver)
		case "db":
			cfg.DBURL = strings.TrimSpace(fl.DBURL)
		case "ensure-schema":
			cfg.EnsureSchema = fl.EnsureSchema
		case "seed":
			cfg.Seed = fl.Seed
		case "seed-file":
			cfg.SeedFile = strings.TrimSpace(fl.SeedFile)
		case "log-level":
			cfg.LogLevel = strings.TrimSpace(fl.LogLevel)
		case "log-dev":
			cfg.LogDev = fl.LogDev
		case "cors-origins":
			cfg.CORSOrigins = splitComma(*origins)
		case "rate-limit":
			cfg.RateLimit = fl.RateLimit
		case "rate-burst":
			cfg.RateBurst = fl.RateBurst
		case "shutdown-timeout":
			cfg.ShutdownTimeout = fl.ShutdownTimeout
		}
	})

	return cfg, cfg.Validate()
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
