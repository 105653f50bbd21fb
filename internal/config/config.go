package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	Import    ImportConfig
	Detection DetectionConfig
	Forecast  ForecastConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr      string
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ImportConfig bounds statement imports.
type ImportConfig struct {
	MaxRecords int `mapstructure:"max_records"`
}

// DetectionConfig tunes the recurring-payment scan.
type DetectionConfig struct {
	LookbackMonths int `mapstructure:"lookback_months"`
}

// ForecastConfig holds projection defaults.
type ForecastConfig struct {
	HorizonMonths int `mapstructure:"horizon_months"`
}

// Load reads configuration from file and env. Env var overrides use prefix KONTOPLAN_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "kontoplan", "kontoplan.db"))
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("import.max_records", 10000)
	v.SetDefault("detection.lookback_months", 18)
	v.SetDefault("forecast.horizon_months", 12)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("KONTOPLAN_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "kontoplan"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("KONTOPLAN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
