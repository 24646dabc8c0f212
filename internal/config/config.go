package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	MySQL struct {
		DSN string
	} `mapstructure:"mysql"`

	Redis struct {
		Enabled bool
		Addr    string
		LockTTL time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Ledger struct {
		MaxAttempts       int           `mapstructure:"max_attempts"`
		RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
		ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	} `mapstructure:"ledger"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("ledger.retry_backoff", 10*time.Millisecond)
	v.SetDefault("ledger.reconcile_interval", 10*time.Minute)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
