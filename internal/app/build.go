package app

import (
	"context"
	"fmt"

	"github.com/antoniostano/starbridge/internal/abilities"
	"github.com/antoniostano/starbridge/internal/agents"
	"github.com/antoniostano/starbridge/internal/bridge"
	"github.com/antoniostano/starbridge/internal/chats"
	"github.com/antoniostano/starbridge/internal/config"
	"github.com/antoniostano/starbridge/internal/httpdebug"
	"github.com/antoniostano/starbridge/internal/navigation"
	"github.com/antoniostano/starbridge/internal/notify"
	"github.com/antoniostano/starbridge/internal/observability"
	"github.com/antoniostano/starbridge/internal/settings"
	"github.com/antoniostano/starbridge/internal/tasks"
)

type BuildResult struct {
	Config    config.Config
	Gateway   *bridge.Gateway
	Tasks     *tasks.Store
	Chats     *chats.Store
	Agents    *agents.Store
	Abilities *abilities.Store
	Settings  *settings.Store
	Nav       *navigation.Binding
	Notifier  *notify.Center
	API       *httpdebug.Server
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to detach push consumers and
	// close the bridge connection.
	Cleanup func() error
}

// Build dials the bridge, wires every store on top of it, attaches the
// push consumers and performs the initial load.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	notifier := notify.NewCenter(notify.WithMetrics(metrics))

	gateway, err := bridge.Dial(ctx, bridge.Config{
		URL:              cfg.BridgeURL,
		Token:            cfg.BridgeToken,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Metrics:          metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge dial failed: %w", err)
	}

	chatStore := chats.NewStore(chats.NewRepository(gateway))
	agentStore := agents.NewStore(agents.NewRepository(gateway))
	abilityStore := abilities.NewStore(abilities.NewRepository(gateway))
	settingStore := settings.NewStore(settings.NewRepository(gateway))

	taskStore := tasks.NewStore(
		tasks.NewRepository(gateway),
		notifier,
		tasks.WithPageSize(cfg.TasksPageSize),
		tasks.WithMetrics(metrics),
		tasks.WithChatLookup(chatStore),
	)
	nav := navigation.NewBinding(taskStore)

	// Initial load. Tasks come first so the shell has buckets to render;
	// the remaining catalogs are best-effort and report through toasts.
	if err := taskStore.Refresh(ctx); err != nil {
		_ = gateway.Close()
		return nil, err
	}
	for name, refresh := range map[string]func(context.Context) error{
		"chats":     chatStore.Refresh,
		"agents":    agentStore.Refresh,
		"abilities": abilityStore.Refresh,
		"settings":  settingStore.Refresh,
	} {
		if err := refresh(ctx); err != nil {
			notifier.Error(fmt.Sprintf("load %s: %v", name, err))
		}
	}

	pushCtx, pushCancel := context.WithCancel(context.Background())
	detachTasks := taskStore.AttachPush(pushCtx, gateway)
	detachChats := chatStore.AttachPush(pushCtx, gateway)

	api := httpdebug.New(taskStore, nav, notifier)

	cleanup := func() error {
		pushCancel()
		detachTasks()
		detachChats()
		return gateway.Close()
	}

	return &BuildResult{
		Config:    cfg,
		Gateway:   gateway,
		Tasks:     taskStore,
		Chats:     chatStore,
		Agents:    agentStore,
		Abilities: abilityStore,
		Settings:  settingStore,
		Nav:       nav,
		Notifier:  notifier,
		API:       api,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}
