package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "EXCHANGE_API_KEY"
	apiSecretENV      = "EXCHANGE_API_SECRET"
	passphraseENV     = "EXCHANGE_PASSPHRASE"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB     string `yaml:"db_dsn"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
	Service struct {
		Host        string `yaml:"host"`
		MetricsPort int    `yaml:"metrics_port"`
	} `yaml:"service"`

	Exchange struct {
		Name       string   `yaml:"name"`
		APIKey     string   `yaml:"api_key"`
		APISecret  string   `yaml:"api_secret"`
		Passphrase string   `yaml:"passphrase"`
		RESTBase   string   `yaml:"rest_base"`
		WSDomains  []string `yaml:"ws_domains"` // failover candidates, preferred first
	} `yaml:"exchange"`

	AccountID int64    `yaml:"account_id"`
	Symbols   []string `yaml:"symbols"` // public ticker watchlist

	// Admission
	MaxOpenPositions int `yaml:"max_open_positions"`
	// durations come from env only, see NewConfig defaults
	ReclaimAfter time.Duration // stale reservation bound

	// Reconciliation
	EntryTTL          time.Duration // entry_pending max age
	PollInterval      time.Duration // REST fallback cadence
	TrailInterval     time.Duration // trailing/reconcile pass cadence
	LockTimeout       time.Duration // abandoned soft lock bound
	CooldownPerSymbol time.Duration // after close/cancel

	// Trailing
	ReducePct      float64 `yaml:"reduce_pct"`       // % of |initialTP-entry| per minute
	UpReducePct    float64 `yaml:"up_reduce_pct"`    // acceleration per elapsed minute
	MinMovePct     float64 `yaml:"min_move_pct"`     // replace threshold
	StopBufferPct  float64 `yaml:"stop_buffer_pct"`  // crossed-entry stop distance from market
	InitialStopPct float64 `yaml:"initial_stop_pct"` // account-level SL at open, 0 = none

	OrderCacheTTL  time.Duration
	OrderCacheSize int `yaml:"order_cache_size"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		MaxOpenPositions: intFromEnv("MAX_OPEN_POSITIONS", 10),
		ReclaimAfter:     durationFromEnv("RECLAIM_AFTER", "10m"),

		EntryTTL:          durationFromEnv("ENTRY_TTL", "15m"),
		PollInterval:      durationFromEnv("POLL_INTERVAL", "30s"),
		TrailInterval:     durationFromEnv("TRAIL_INTERVAL", "20s"),
		LockTimeout:       durationFromEnv("LOCK_TIMEOUT", "5m"),
		CooldownPerSymbol: durationFromEnv("COOLDOWN_PER_SYMBOL", "60s"),

		ReducePct:      floatFromEnv("REDUCE_PCT", 10.0),
		UpReducePct:    floatFromEnv("UP_REDUCE_PCT", 0),
		MinMovePct:     floatFromEnv("MIN_MOVE_PCT", 0.02),
		StopBufferPct:  floatFromEnv("STOP_BUFFER_PCT", 0.05),
		InitialStopPct: floatFromEnv("INITIAL_STOP_PCT", 0),

		OrderCacheTTL:  durationFromEnv("ORDER_CACHE_TTL", "10m"),
		OrderCacheSize: intFromEnv("ORDER_CACHE_SIZE", 2000),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(apiKeyENV); v != "" {
		config.Exchange.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		config.Exchange.APISecret = v
	}
	if v := os.Getenv(passphraseENV); v != "" {
		config.Exchange.Passphrase = v
	}

	if config.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("max_open_positions must be positive")
	}
	if config.ReducePct <= 0 {
		return nil, fmt.Errorf("reduce_pct must be positive")
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
