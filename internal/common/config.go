package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	Env         string
	LogLevel    string

	// ticket store: memory | sqlite | postgres
	StoreBackend string
	DBDSN        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// per-office lock: local | redis
	LockBackend string
	LockTTL     time.Duration

	RefDataPath  string
	RefDataWatch bool
	FAQPath      string

	// KB backend selection: "memory" (default) or "es"
	KBBackend  string
	ESAddrs    []string
	ESIndex    string
	ESUsername string
	ESPassword string

	AIProvider string

	JWTSecret    string
	JWTTTL       time.Duration
	AuthDisabled bool
	// principal injected when auth is disabled, "user:role"
	DevPrincipal string

	// cron spec for the queue repair sweep, empty disables it
	RenumberCron string
	// chatbot sessions: memory | redis
	SessionBackend string
	SessionTTL     time.Duration

	// Consul registry address (single)
	RegistryAddr string
	Tracing      bool
}

var defaults = map[string]any{
	"http_addr":       ":8080",
	"metrics_addr":    ":9100",
	"env":             "dev",
	"log_level":       "info",
	"store_backend":   StoreMemory,
	"db_dsn":          "data/campus-desk.db",
	"redis_addr":      "",
	"redis_password":  "",
	"redis_db":        0,
	"lock_backend":    "local",
	"lock_ttl":        "5s",
	"refdata_path":    "data/refdata.yaml",
	"refdata_watch":   false,
	"faq_path":        "data/faq.yaml",
	"kb_backend":      "memory",
	"es_addrs":        "",
	"es_index":        "campus_faq",
	"es_username":     "",
	"es_password":     "",
	"ai_provider":     "mock",
	"jwt_secret":      "",
	"jwt_ttl":         "24h",
	"auth_disabled":   false,
	"dev_principal":   "dev:admin",
	"renumber_cron":   "",
	"session_backend": "memory",
	"session_ttl":     "30m",
	"registry_addr":   "",
	"tracing":         false,
}

// LoadConfig reads defaults, then the optional YAML file named by CONF_FILE, then the environment.
// Environment keys are the upper-cased config keys (HTTP_ADDR, DB_DSN, ...); CONSUL_ADDR is
// accepted for registry_addr.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	_ = v.BindEnv("registry_addr", "REGISTRY_ADDR", "CONSUL_ADDR")
	if f := os.Getenv("CONF_FILE"); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", f, err)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		HTTPAddr:       v.GetString("http_addr"),
		MetricsAddr:    v.GetString("metrics_addr"),
		Env:            v.GetString("env"),
		LogLevel:       v.GetString("log_level"),
		StoreBackend:   strings.ToLower(v.GetString("store_backend")),
		DBDSN:          v.GetString("db_dsn"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		LockBackend:    strings.ToLower(v.GetString("lock_backend")),
		LockTTL:        v.GetDuration("lock_ttl"),
		RefDataPath:    v.GetString("refdata_path"),
		RefDataWatch:   v.GetBool("refdata_watch"),
		FAQPath:        v.GetString("faq_path"),
		KBBackend:      strings.ToLower(v.GetString("kb_backend")),
		ESAddrs:        splitList(v.GetString("es_addrs")),
		ESIndex:        v.GetString("es_index"),
		ESUsername:     v.GetString("es_username"),
		ESPassword:     v.GetString("es_password"),
		AIProvider:     v.GetString("ai_provider"),
		JWTSecret:      v.GetString("jwt_secret"),
		JWTTTL:         v.GetDuration("jwt_ttl"),
		AuthDisabled:   v.GetBool("auth_disabled"),
		DevPrincipal:   v.GetString("dev_principal"),
		RenumberCron:   v.GetString("renumber_cron"),
		SessionBackend: strings.ToLower(v.GetString("session_backend")),
		SessionTTL:     v.GetDuration("session_ttl"),
		RegistryAddr:   v.GetString("registry_addr"),
		Tracing:        v.GetBool("tracing"),
	}
}

// DefaultConfig is the configuration used when nothing is set; handy for tests.
func DefaultConfig() *Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return fromViper(v)
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

// EsAddressesOrDefault returns configured ES addresses or a local default.
func (c *Config) EsAddressesOrDefault() []string {
	if len(c.ESAddrs) > 0 {
		return c.ESAddrs
	}
	return []string{"http://localhost:9200"}
}
