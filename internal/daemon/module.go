package daemon

import (
	"context"
	"path/filepath"
	"sync/atomic"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/audit"
	"github.com/matheus3301/tgfilter/internal/bus"
	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/instance"
	"github.com/matheus3301/tgfilter/internal/lock"
	"github.com/matheus3301/tgfilter/internal/logging"
	"github.com/matheus3301/tgfilter/internal/pipeline"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/status"
	"github.com/matheus3301/tgfilter/internal/store"
	"github.com/matheus3301/tgfilter/internal/supervise"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Component names the daemon in logs and log file names.
const Component = "tgfd"

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance   string
	Config     *config.Config
	Dir        string // optional instance directory override for testing
	SocketPath string // optional override for testing; empty = use default
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return instance.Dir(p.Instance)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return filepath.Join(p.dir(), "daemon.sock")
}

type (
	inboundQueue  = *queue.Bounded[wire.ChannelMessage]
	outboundQueue = *queue.Bounded[wire.ForwardingJob]
)

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideInbound,
			provideOutbound,
			provideOrchestrator,
			provideSweeper,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(filepath.Join(p.dir(), "logs", Component+".log"), Component, p.Instance)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring instance lock", zap.String("dir", p.dir()))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// lock holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "tgfilter.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized",
		zap.String("path", dbPath),
		zap.Uint("schema_version", result.To),
		zap.Bool("migrated", result.Changed()),
	)
	return db, nil
}

func provideInbound(p Params) inboundQueue {
	return queue.NewBounded[wire.ChannelMessage](p.Config.Queue.InboundSize)
}

func provideOutbound(p Params) outboundQueue {
	return queue.NewBounded[wire.ForwardingJob](p.Config.Queue.OutboundSize)
}

func provideOrchestrator(db *store.DB, in inboundQueue, out outboundQueue, b *bus.Bus, logger *zap.Logger) *pipeline.Orchestrator {
	return pipeline.New(db, in, out, b, logger.Named("pipeline"))
}

func provideSweeper(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) (*audit.Sweeper, error) {
	return audit.New(db, b, logger.Named("audit"), p.Config.Audit.Schedule, p.Config.Audit.StalledAfter)
}

func provideControlService(p Params, db *store.DB, m *status.Machine, b *bus.Bus, in inboundQueue, out outboundQueue, orch *pipeline.Orchestrator, sw *audit.Sweeper) *api.ControlService {
	return api.NewControlService(p.Instance, db, m, b, api.Sources{
		Inbound:  in,
		Outbound: out,
		Pipeline: orch.Stats,
		Stalled:  sw.LastCount,
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	p Params,
	srv *Server,
	control *api.ControlService,
	lk *lock.Lock,
	db *store.DB,
	in inboundQueue,
	out outboundQueue,
	orch *pipeline.Orchestrator,
	sweeper *audit.Sweeper,
	machine *status.Machine,
	logger *zap.Logger,
) {
	var (
		cancel   context.CancelFunc
		done     = make(chan struct{})
		stopping atomic.Bool
	)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			sweeper.Start()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				err := supervise.Loop(ctx, "pipeline", logger, orch.Run,
					supervise.WithBackoff(p.Config.Pipeline.RestartMinBackoff, p.Config.Pipeline.RestartMaxBackoff),
					supervise.OnStart(func(int) { _ = machine.Transition(status.Running) }),
					supervise.OnRestart(func(int, error) { _ = machine.Transition(status.Degraded) }),
				)
				if err != nil && !stopping.Load() {
					_ = machine.Transition(status.Error)
					logger.Error("pipeline failed, shutting down", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			if ok, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
				logger.Warn("sd_notify failed", zap.Error(err))
			} else if ok {
				logger.Info("notified systemd")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopping.Store(true)
			_, _ = sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
			_ = machine.Transition(status.Draining)

			// Let the loop finish what is already queued.
			in.Close()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("drain timed out", zap.Int("inbound_left", in.Len()))
			}
			cancel()
			<-done

			out.Close()
			control.Close()
			srv.Stop(ctx)
			sweeper.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			_ = machine.Transition(status.Stopped)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped", zap.Any("pipeline", orch.Stats()))
			_ = logger.Sync()
			return nil
		},
	})
}
