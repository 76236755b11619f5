package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv           string
	HTTPAddr         string
	MetricsAddr      string
	MySQLDSN         string
	RedisAddr        string
	RedisDB          int
	RedisPass        string
	SmoobuBase       string
	SmoobuKey        string
	SmoobuRPS        int
	ReconcileWorkers int
	ReconcileBatch   int
	CacheTTL         time.Duration
}

func Load() Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ":9100"),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/resort?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RedisDB:          atoi("REDIS_DB", 0),
		SmoobuBase:       env("SMOOBU_BASE_URL", "https://login.smoobu.com"),
		SmoobuKey:        env("SMOOBU_API_KEY", ""),
		SmoobuRPS:        atoi("SMOOBU_RPS", 5),
		ReconcileWorkers: atoi("RECONCILE_WORKERS", 4),
		ReconcileBatch:   atoi("RECONCILE_BATCH", 100),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 120)) * time.Second,
	}
	if c.SmoobuKey == "" {
		log.Warn().Msg("SMOOBU_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
