// Package app wires the client components together and owns their
// lifecycle: ledger, reconciler pipeline, composer, retention and the local
// inspection server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"peerchat/internal/retention"
	"peerchat/pkg/banner"
	"peerchat/pkg/boundary"
	"peerchat/pkg/compose"
	"peerchat/pkg/config"
	"peerchat/pkg/connstate"
	"peerchat/pkg/events"
	"peerchat/pkg/ledger"
	"peerchat/pkg/logger"
	"peerchat/pkg/reconcile"
	"peerchat/pkg/state"
)

// App encapsulates the client components and lifecycle.
type App struct {
	cfg     config.Config
	version string

	selfKey []byte

	bus        *events.Bus
	tracker    *connstate.Tracker
	queue      *reconcile.Queue
	reconciler *reconcile.Reconciler
	composer   *compose.Composer
	dispatcher boundary.Dispatcher

	srv             *http.Server
	retentionCancel context.CancelFunc
}

// New validates the config and initializes everything that does not need a
// running context: state dirs, the ledger, the event pipeline and the
// composer. Call Run to start the reconciler, retention and the inspection
// server, and to block until shutdown.
func New(cfg config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	selfKey, err := loadSelfKey(cfg)
	if err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(cfg.Client.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}

	if err := ledger.OpenWithCache(state.PathsVar.Store, cfg.Client.CacheSize.Int64()); err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", state.PathsVar.Store, err)
	}

	a := &App{cfg: cfg, version: version, selfKey: selfKey}
	a.bus = events.NewBus()
	a.tracker = connstate.New(a.bus)
	a.queue = reconcile.NewQueue(cfg.Reconcile.Shards, cfg.Reconcile.QueueCapacity)
	a.reconciler = reconcile.New(a.queue, a.bus, a.tracker, loggingRefresher{}, selfKey)

	a.dispatcher = boundary.NewRateLimited(
		boundary.NewLoopback(a.reconciler, selfKey),
		cfg.Dispatch.RPS, cfg.Dispatch.Burst,
	)
	a.composer = compose.New(a.dispatcher, a.bus, selfKey, newDirAttachments(state.PathsVar.Tmp))

	return a, nil
}

// UseDispatcher replaces the default in-process dispatcher. Must be called
// before Run; embedders use this to plug in a real network boundary.
func (a *App) UseDispatcher(d boundary.Dispatcher) {
	a.dispatcher = d
	a.composer = compose.New(d, a.bus, a.selfKey, newDirAttachments(state.PathsVar.Tmp))
}

// Sink returns the inbound event sink the network boundary should deliver
// into.
func (a *App) Sink() boundary.Sink { return a.reconciler }

// Bus returns the client event bus for UI subscriptions.
func (a *App) Bus() *events.Bus { return a.bus }

// Composer returns the outbound composer.
func (a *App) Composer() *compose.Composer { return a.composer }

// Tracker returns the per-chat connection state tracker.
func (a *App) Tracker() *connstate.Tracker { return a.tracker }

// Run starts the reconciler workers, the retention scheduler and the
// inspection HTTP server, and blocks until ctx is canceled or a fatal server
// error occurs.
func (a *App) Run(ctx context.Context) error {
	a.reconciler.Start()

	retention.SetConfig(a.cfg)
	cancel, err := retention.Start(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.retentionCancel = cancel

	banner.Print(a.cfg, a.version)

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close drains and releases everything Run started, in dependency order:
// stop accepting events, drain the queue, then close the ledger so every
// applied event is durable before the process exits.
func (a *App) Close() {
	if a.retentionCancel != nil {
		a.retentionCancel()
	}
	a.stopHTTP()
	a.reconciler.Stop()
	if err := ledger.Close(); err != nil {
		logger.Error("ledger_close_failed", "error", err)
	}
}

// loggingRefresher records membership refresh requests; the member
// directory itself lives outside this process.
type loggingRefresher struct{}

func (loggingRefresher) RefreshMembers(chatID string) {
	logger.Info("membership_refresh_requested", "chat", chatID)
}
