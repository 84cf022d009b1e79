//go:build wireinject

package di

import (
	"sync"

	"github.com/google/wire"
	"github.com/tamias-ai/tamias/pkg/config"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"github.com/tamias-ai/tamias/pkg/events"
	"github.com/tamias-ai/tamias/pkg/logging"
)

// Overrides carries per-invocation values (CLI flags) that win over config.
type Overrides struct {
	Model         string
	ContextWindow int
}

var (
	eventBusOnce sync.Once
	eventBus     *events.InMemoryBus
)

// ProvideEventBus returns the process-wide event bus, created on first use so
// it picks up the logger configured by the CLI.
func ProvideEventBus() *events.InMemoryBus {
	eventBusOnce.Do(func() {
		eventBus = events.NewEventBus()
	})
	return eventBus
}

func ProvidePublisher() events.Publisher {
	return ProvideEventBus()
}

func ProvideSubscriber() events.Subscriber {
	return ProvideEventBus()
}

func ProvideConfigManager() (*config.DefaultManager, error) {
	return config.NewConfigManager()
}

func ProvideLogger() logging.Logger {
	return logging.NewComponentLogger("context")
}

// ProvideAllocatorOptions merges configuration with per-invocation overrides.
func ProvideAllocatorOptions(manager config.Manager, overrides Overrides) ctx.AllocatorOptions {
	cfg := manager.GetAllocatorConfig()
	opts := ctx.AllocatorOptions{
		Model:         cfg.Model,
		ContextWindow: cfg.ContextWindow,
		Budget:        cfg.Budget(),
		MinKeep:       cfg.KeepAtLeast(),
	}
	if overrides.Model != "" && overrides.Model != opts.Model {
		opts.Model = overrides.Model
		opts.ContextWindow = 0
	}
	if overrides.ContextWindow > 0 {
		opts.ContextWindow = overrides.ContextWindow
	}
	return opts
}

var AllocatorSet = wire.NewSet(
	ProvideConfigManager,
	wire.Bind(new(config.Manager), new(*config.DefaultManager)),
	ProvideAllocatorOptions,
	ProvideLogger,
	ProvidePublisher,
	ctx.NewAllocator,
)

// ProvideAllocator builds a configured allocator wired to the shared event bus.
func ProvideAllocator(overrides Overrides) (*ctx.Allocator, error) {
	wire.Build(AllocatorSet)
	return nil, nil
}
