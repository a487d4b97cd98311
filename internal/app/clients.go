package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/platform/openai"
	"github.com/yungbote/coursegen/internal/platform/qdrant"
	"github.com/yungbote/coursegen/internal/realtime/bus"
	"github.com/yungbote/coursegen/internal/temporalx"
)

type Clients struct {
	LLM openai.Client
	// Vectors is nil when qdrant.url is unset.
	Vectors qdrant.VectorStore

	// Redis backs the rate limiter and readiness check; nil without redis.addr.
	Redis goredis.UniversalClient
	Bus   bus.Bus

	// Temporal is nil unless runner.mode=temporal.
	Temporal temporalsdkclient.Client
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	llm, err := openai.NewClient(log, cfg.OpenAIConfig())
	if err != nil {
		return out, fmt.Errorf("init openai client: %w", err)
	}
	out.LLM = llm

	if cfg.Qdrant.URL != "" {
		vs, err := qdrant.NewVectorStore(log, cfg.QdrantConfig())
		if err != nil {
			return out, fmt.Errorf("init qdrant: %w", err)
		}
		out.Vectors = instrumentVectorStore("qdrant", vs)
	} else {
		log.Warn("qdrant.url not set; chapters will carry no references")
	}

	if cfg.Redis.Addr != "" {
		b, err := bus.NewRedisBus(log, cfg.BusConfig())
		if err != nil {
			return out, fmt.Errorf("init redis bus: %w", err)
		}
		out.Bus = b
		out.Redis = goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	} else {
		log.Warn("redis.addr not set; realtime events stay in process")
		out.Bus = bus.NewLocalBus(log, int(cfg.Redis.StreamMaxLen))
	}

	if cfg.Runner.Mode == RunnerModeTemporal {
		tc, err := temporalx.NewClient(log, cfg.TemporalConfig())
		if err != nil {
			out.close(log)
			return out, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
	}
	return out, nil
}

func (c Clients) close(log *logger.Logger) {
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			log.Warn("bus close failed", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
}
