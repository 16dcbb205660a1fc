package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
}

// CheckoutConfig holds pricing policy values. These are deployment policy,
// not invariants: the order math only promises
// total = subtotal + shipping + tax - discount - loyalty.
type CheckoutConfig struct {
	ShippingFee           float64       `mapstructure:"shipping_fee"`
	FreeShippingThreshold float64       `mapstructure:"free_shipping_threshold"`
	TaxRate               float64       `mapstructure:"tax_rate"`
	TxRetries             int           `mapstructure:"tx_retries"`
	TxRetryBackoff        time.Duration `mapstructure:"tx_retry_backoff"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.name", "storefront")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("checkout.shipping_fee", 10.0)
	v.SetDefault("checkout.free_shipping_threshold", 0.0)
	v.SetDefault("checkout.tax_rate", 0.10)
	v.SetDefault("checkout.tx_retries", 3)
	v.SetDefault("checkout.tx_retry_backoff", 50*time.Millisecond)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// DSN builds the go-sql-driver connection string. clientFoundRows makes
// RowsAffected report matched rows instead of changed rows, so a guarded
// UPDATE that re-asserts the current value still counts as a hit.
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		c.Username, c.Password, c.Host, c.Port, c.Database)
}
