// Package config loads relay configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is reported by the --version flag.
const Version = "0.2.0"

// Config holds application-wide configuration.
type Config struct {
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	DB      DBConfig      `mapstructure:"db"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MQTTConfig describes the broker session.
type MQTTConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Topic     string        `mapstructure:"topic"`
	ClientID  string        `mapstructure:"clientID"`
	KeepAlive time.Duration `mapstructure:"keepAlive"`
}

// DBConfig describes the reading-log database.
type DBConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Name string `mapstructure:"name"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ConnString renders the database config as a connection URL.
func (c DBConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Pass), c.Host, c.Port, c.Name)
}

// envBindings maps config keys onto the environment variable names the
// deployment already uses (docker-compose), so no env prefix is applied.
var envBindings = map[string]string{
	"mqtt.host":    "MQTT_HOST",
	"mqtt.port":    "MQTT_PORT",
	"mqtt.topic":   "MQTT_TOPIC",
	"db.host":      "DB_HOST",
	"db.port":      "DB_PORT",
	"db.name":      "DB_NAME",
	"db.user":      "DB_USER",
	"db.pass":      "DB_PASS",
	"metrics.addr": "METRICS_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.host", "SITH-MQTT-Broker")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic", "roverCommsLog/#")
	v.SetDefault("mqtt.keepAlive", "60s")

	v.SetDefault("db.host", "SITH-MySQL")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "SITH")
	v.SetDefault("db.user", "SITH")
	v.SetDefault("db.pass", "SITH")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
}

// Load reads config from file or environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("roverlog")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}
