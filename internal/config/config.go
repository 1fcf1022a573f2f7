package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"authapp/internal/credentials"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds everything the service reads from the environment or from
// the optional file named by CONFIG_FILE.
type Config struct {
	ServiceName      string        `mapstructure:"SERVICE_NAME" validate:"required"`
	AppPort          string        `mapstructure:"APP_PORT" validate:"required"`
	LogLevel         string        `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat        string        `mapstructure:"LOG_FORMAT" validate:"oneof=console json"`
	DBDriver         string        `mapstructure:"DB_DRIVER" validate:"oneof=postgres sqlite memory"`
	DatabaseDSN      string        `mapstructure:"DATABASE_DSN" validate:"required_unless=DBDriver memory"`
	PasswordPepper   string        `mapstructure:"PASSWORD_PEPPER" validate:"required,min=16"`
	PasswordHasher   string        `mapstructure:"PASSWORD_HASHER" validate:"oneof=bcrypt pbkdf2_sha256"`
	BcryptCost       int           `mapstructure:"BCRYPT_COST" validate:"min=4,max=31"`
	PBKDF2Iterations int           `mapstructure:"PBKDF2_ITERATIONS" validate:"min=1"`
	RabbitMQURL      string        `mapstructure:"RABBITMQ_URL" validate:"omitempty,url"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// HasherOptions maps the password settings onto credentials.Options.
func (c *Config) HasherOptions() credentials.Options {
	return credentials.Options{
		Algorithm:        c.PasswordHasher,
		Pepper:           c.PasswordPepper,
		BcryptCost:       c.BcryptCost,
		PBKDF2Iterations: c.PBKDF2Iterations,
	}
}

// SetDefaults registers every key, so AutomaticEnv can override all of them
// during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "authapp")
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_DSN", "authapp.db")
	v.SetDefault("PASSWORD_PEPPER", "")
	v.SetDefault("PASSWORD_HASHER", credentials.AlgorithmBcrypt)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("PBKDF2_ITERATIONS", credentials.DefaultPBKDF2Iterations)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
}

// Load reads configuration from the environment, layered over the file named
// by CONFIG_FILE when set, and validates it.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(cfg.DBDriver)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
