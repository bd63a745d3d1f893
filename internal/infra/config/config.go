package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Batch struct {
		WindowDays      int `envconfig:"BATCH_WINDOW_DAYS" default:"7"`
		IntervalMinutes int `envconfig:"BATCH_INTERVAL_MINUTES" default:"60"`
		TrendingTopN    int `envconfig:"TRENDING_TOP_N" default:"10"`
		TrendingTTLSec  int `envconfig:"TRENDING_CACHE_TTL_SEC" default:"300"`
	} `envconfig:""`

	Limits struct {
		PageDefault      int `envconfig:"PAGE_DEFAULT" default:"20"`
		PageMax          int `envconfig:"PAGE_MAX" default:"100"`
		RecommendDefault int `envconfig:"RECOMMEND_DEFAULT_LIMIT" default:"20"`
	} `envconfig:""`

	Queues struct {
		Recompute string `envconfig:"RECOMPUTE_QUEUE_KEY" default:"recompute_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
