/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Built-in defaults
  2. YAML config file (--config)
  3. STAKING_* environment variables (STAKING_SERVER_PORT, STAKING_LOG_LEVEL, ...)
  4. Command-line flags bound by cmd/server

EXAMPLE:
  server:
    port: 8080
    allowed_origins: ["http://localhost:3000"]
  database:
    path: ./data/staking.db
  log:
    level: info
    format: json
  scheduler:
    enabled: true
    spec: "5 0 1 * *"
    operator: "0x00000000000000000000000000000000000000f0"
  operators:
    - "0x00000000000000000000000000000000000000f0"
  treasury:
    tokens:
      - id: USDT
        decimals: 6
        price_usd: "1"
        reserve: "1000000"
  strategies:
    - id: flex-5y
      kind: flexible
      initial_months: 2
      initial_rewards_rate_bp: 100
      min_months: 12
      max_months: 60
      year_deprecation_rate_bp: 1000
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/logging"
	"github.com/warp/staking-engine/treasury"
)

const EnvPrefix = "STAKING"

type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Log        logging.Config         `mapstructure:"log"`
	Metrics    MetricsConfig          `mapstructure:"metrics"`
	Scheduler  SchedulerConfig        `mapstructure:"scheduler"`
	Clock      ClockConfig            `mapstructure:"clock"`
	Operators  []string               `mapstructure:"operators" validate:"dive,hexaddr"`
	Treasury   TreasuryConfig         `mapstructure:"treasury"`
	Strategies []factory.StrategyJSON `mapstructure:"strategies" validate:"dive"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Path of the SQLite file; ":memory:" keeps everything in process.
	Path string `mapstructure:"path" validate:"required"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Spec     string `mapstructure:"spec"`
	Operator string `mapstructure:"operator" validate:"omitempty,hexaddr"`
}

type ClockConfig struct {
	// Mode is "system" or "manual". A manual clock starts at Start and only
	// moves through the admin endpoint.
	Mode  string `mapstructure:"mode" validate:"oneof=system manual"`
	Start string `mapstructure:"start" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type TreasuryConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens" validate:"dive"`
}

type TokenConfig struct {
	ID       string `mapstructure:"id" validate:"required"`
	Decimals int32  `mapstructure:"decimals" validate:"min=0,max=36"`
	PriceUSD string `mapstructure:"price_usd" validate:"required,numeric"`
	Reserve  string `mapstructure:"reserve" validate:"omitempty,numeric"`
}

// Token converts the entry into a treasury token and its initial reserve.
func (t TokenConfig) Token() (treasury.Token, generic.Amount, error) {
	price, err := decimal.NewFromString(t.PriceUSD)
	if err != nil {
		return treasury.Token{}, generic.Amount{}, fmt.Errorf("token %s: price_usd: %w", t.ID, err)
	}
	reserve := generic.NewAmount(decimal.Zero, generic.Unit(t.ID))
	if t.Reserve != "" {
		reserve, err = generic.ParseUnits(t.Reserve, t.Decimals, generic.Unit(t.ID))
		if err != nil {
			return treasury.Token{}, generic.Amount{}, fmt.Errorf("token %s: reserve: %w", t.ID, err)
		}
	}
	return treasury.Token{ID: generic.TokenID(t.ID), Decimals: t.Decimals, PriceUSD: price}, reserve, nil
}

// OperatorAddresses parses the operator list.
func (c *Config) OperatorAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Operators))
	for _, s := range c.Operators {
		out = append(out, common.HexToAddress(s))
	}
	return out
}

// ClockStart returns the manual clock start, or zero when unset.
func (c *Config) ClockStart() time.Time {
	if c.Clock.Start == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, c.Clock.Start)
	return t
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.path", "staking.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "staking_engine")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "5 0 1 * *")
	v.SetDefault("clock.mode", "system")
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":       "server.port",
	"db":         "database.path",
	"log-level":  "log.level",
	"log-format": "log.format",
	"clock":      "clock.mode",
}

// Load reads defaults, the optional file at path, the environment and flags.
// Only flags the user actually set override the other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	v := validator.New()
	_ = v.RegisterValidation("hexaddr", func(fl validator.FieldLevel) bool {
		return common.IsHexAddress(fl.Field().String())
	})
	if c.Scheduler.Enabled && (c.Scheduler.Spec == "" || c.Scheduler.Operator == "") {
		return fmt.Errorf("%w: scheduler needs spec and operator", generic.ErrInvalidConfig)
	}
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", generic.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", generic.ErrInvalidConfig, err)
	}
	return nil
}
