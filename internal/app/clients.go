package app

import (
	"fmt"

	"github.com/yungbote/lineflow-backend/internal/clients/line"
	"github.com/yungbote/lineflow-backend/internal/clients/redis"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

type Clients struct {
	Line  line.Client
	Redis redis.Coordinator
	// Shared reports whether Redis backs dedupe and locks across replicas.
	Shared bool
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	lineClient, err := line.New(log, cfg.LINE)
	if err != nil {
		return Clients{}, fmt.Errorf("init line client: %w", err)
	}

	coord, err := redis.New(log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	return Clients{
		Line:   lineClient,
		Redis:  coord,
		Shared: cfg.Redis.Addr != "",
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
