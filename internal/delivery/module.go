package delivery

import (
	"context"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/instance"
	"github.com/matheus3301/tgfilter/internal/logging"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/supervise"
	"github.com/matheus3301/tgfilter/internal/telegram"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Component names the delivery bot in logs and log file names.
const Component = "tgfbot"

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance string
	Config   *config.Config
}

// Module returns the fx module for the delivery bot.
func Module(p Params) fx.Option {
	return fx.Module("delivery",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideDaemonClient,
			provideOutbound,
			provideRegistrar,
			provideTelegram,
			provideWorker,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance, Component), Component, p.Instance)
}

func provideDaemonClient(p Params) (*api.Client, error) {
	return api.Dial(instance.SocketPath(p.Instance))
}

func provideOutbound(c *api.Client) queue.Queue[wire.ForwardingJob] {
	return queue.NewClient[wire.ForwardingJob](c.Conn, queue.OutboundService)
}

func provideRegistrar(c *api.Client, logger *zap.Logger) *Registrar {
	return NewRegistrar(c, logger)
}

func provideTelegram(p Params, r *Registrar, logger *zap.Logger) (*telegram.Client, error) {
	return telegram.New(telegram.Options{
		Token:      p.Config.Bot.Token,
		APIURL:     p.Config.Bot.APIURL,
		Updates:    []string{"message"},
		Handler:    r.Handle,
		Sequential: true,
	}, logger)
}

func provideWorker(p Params, q queue.Queue[wire.ForwardingJob], tg *telegram.Client, logger *zap.Logger) *Worker {
	return NewWorker(q, tg, p.Config.Bot.RatePerSecond, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, tg *telegram.Client, w *Worker, c *api.Client, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		polled = make(chan struct{})
		worked = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(polled)
				tg.Start(ctx)
			}()
			go func() {
				defer close(worked)
				// Failures reaching the daemon are retried; only cancellation stops the loop.
				_ = supervise.Loop(ctx, "delivery", logger, w.Run,
					supervise.WithBackoff(p.Config.Pipeline.RestartMinBackoff, p.Config.Pipeline.RestartMaxBackoff),
				)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			for _, ch := range []chan struct{}{polled, worked} {
				select {
				case <-ch:
				case <-ctx.Done():
				}
			}
			st := w.Stats()
			logger.Info("delivery bot stopped",
				zap.Uint64("forwarded", st.Forwarded),
				zap.Uint64("fallback", st.Fallback),
				zap.Uint64("dropped", st.Dropped),
			)
			_ = c.Close()
			_ = logger.Sync()
			return nil
		},
	})
}
