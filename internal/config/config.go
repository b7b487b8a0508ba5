package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/service-hours-ledger/internal/models"
)

// Store kinds accepted by HOURS_STORE.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HOURS_HTTP_ADDR" envDefault:":8080"`

	Store       string `env:"HOURS_STORE" envDefault:"sqlite"`
	SQLitePath  string `env:"HOURS_SQLITE_PATH" envDefault:"data/hours.db"`
	PostgresDSN string `env:"HOURS_POSTGRES_DSN"`

	KafkaBrokers []string `env:"HOURS_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"HOURS_KAFKA_TOPIC" envDefault:"service-hours.ledger"`

	AwardsFile string `env:"HOURS_AWARDS_FILE"`
	TimeZone   string `env:"HOURS_TIMEZONE" envDefault:"UTC"`

	EmailDomain        string `env:"HOURS_EMAIL_DOMAIN" envDefault:"example.school.nz"`
	ProfilePlaceholder string `env:"HOURS_PROFILE_PLACEHOLDER" envDefault:"/static/img/profile-photo-placeholder.jpg"`
	// RoleNames maps enrollment role names to roles, e.g. student:regular.
	RoleNames map[string]string `env:"HOURS_ROLE_NAMES" envDefault:"student:regular,staff:supervisor,admin:administrator" envKeyValSeparator:":" envSeparator:","`

	MaxEntryHours  decimal.Decimal `env:"HOURS_MAX_ENTRY_HOURS" envDefault:"100"`
	MaxDescription int             `env:"HOURS_MAX_DESCRIPTION" envDefault:"100"`
	MaxGroupName   int             `env:"HOURS_MAX_GROUP_NAME" envDefault:"40"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("HOURS_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("HOURS_POSTGRES_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown HOURS_STORE %q", c.Store)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if !c.MaxEntryHours.IsPositive() {
		return errors.New("HOURS_MAX_ENTRY_HOURS must be positive")
	}
	if c.MaxDescription <= 0 || c.MaxGroupName <= 0 {
		return errors.New("length limits must be positive")
	}
	if _, err := c.Roles(); err != nil {
		return err
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return errors.New("HOURS_KAFKA_TOPIC is required when brokers are set")
	}
	return nil
}

// Location is the calendar used for entry date rules.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Roles resolves RoleNames into the enrollment role mapping.
func (c Config) Roles() (map[string]models.Role, error) {
	if len(c.RoleNames) == 0 {
		return nil, errors.New("HOURS_ROLE_NAMES must name at least one role")
	}
	roles := make(map[string]models.Role, len(c.RoleNames))
	for name, value := range c.RoleNames {
		role, ok := models.ParseRole(strings.TrimSpace(value))
		if !ok {
			return nil, fmt.Errorf("HOURS_ROLE_NAMES: %q maps to unknown role %q", name, value)
		}
		roles[strings.TrimSpace(name)] = role
	}
	return roles, nil
}
