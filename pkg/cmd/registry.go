// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/loomhq/loom/pkg/durable"
	"github.com/loomhq/loom/pkg/executors/filter"
	"github.com/loomhq/loom/pkg/executors/transform"
	"github.com/loomhq/loom/pkg/executors/trigger"
	"github.com/loomhq/loom/pkg/registry"
)

// NewRegistry creates the executor registry with all native node types
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(trigger.NewManualFactory())
	reg.Register(trigger.NewScheduleFactory())
	reg.Register(trigger.NewWebhookFactory())
	reg.Register(filter.NewFactory())
	reg.Register(transform.NewFactory())

	return reg
}

// NewStepStore creates the durable step store. With REDIS_URL set the store
// survives process restarts; otherwise steps are memoized in process memory.
func NewStepStore() durable.StepStore {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return durable.NewMemoryStore()
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse REDIS_URL: %w", err))
	}

	return durable.NewRedisStore(redis.NewClient(options))
}
