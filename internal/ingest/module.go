package ingest

import (
	"context"

	"github.com/matheus3301/tgfilter/internal/api"
	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/instance"
	"github.com/matheus3301/tgfilter/internal/logging"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/telegram"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Component names the listener in logs and log file names.
const Component = "tgflisten"

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance string
	Config   *config.Config
}

// Module returns the fx module for the channel listener.
func Module(p Params) fx.Option {
	return fx.Module("ingest",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideDaemonClient,
			provideInbound,
			provideIngestor,
			provideTelegram,
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

func provideInbound(c *api.Client) queue.Queue[wire.ChannelMessage] {
	return queue.NewClient[wire.ChannelMessage](c.Conn, queue.InboundService)
}

func provideIngestor(p Params, q queue.Queue[wire.ChannelMessage], logger *zap.Logger) *Ingestor {
	return New(p.Config.Listener.ChannelID, q, logger)
}

func provideTelegram(p Params, ing *Ingestor, logger *zap.Logger) (*telegram.Client, error) {
	return telegram.New(telegram.Options{
		Token:      p.Config.Listener.Token,
		APIURL:     p.Config.Listener.APIURL,
		Updates:    []string{"channel_post"},
		Handler:    ing.Handle,
		Sequential: true,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, tg *telegram.Client, c *api.Client, logger *zap.Logger) {
	var (
		cancel context.CancelFunc
		done   = make(chan struct{})
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			logger.Info("listening for channel posts", zap.Int64("channel_id", p.Config.Listener.ChannelID))
			go func() {
				defer close(done)
				tg.Start(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			_ = c.Close()
			_ = logger.Sync()
			return nil
		},
	})
}
