// Package ingest turns posts of the monitored channel into inbound queue
// items.
package ingest

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/matheus3301/tgfilter/internal/queue"
	"github.com/matheus3301/tgfilter/internal/telegram"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/zap"
)

// ErrIgnored is returned for updates that are not posts of the monitored
// channel or carry no text.
var ErrIgnored = errors.New("update ignored")

// Ingestor puts channel posts on the inbound queue in arrival order.
type Ingestor struct {
	channelID int64
	q         queue.Queue[wire.ChannelMessage]
	logger    *zap.Logger
}

// New creates an ingestor for channelID. A zero channelID accepts every
// channel the bot receives posts from.
func New(channelID int64, q queue.Queue[wire.ChannelMessage], logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{channelID: channelID, q: q, logger: logger}
}

// Ingest enqueues the update's channel post. Put blocks while the inbound
// queue is full.
func (i *Ingestor) Ingest(ctx context.Context, update *models.Update) error {
	post := telegram.ChannelPost(update)
	if post == nil {
		return ErrIgnored
	}
	if i.channelID != 0 && post.Chat.ID != i.channelID {
		i.logger.Debug("post from unmonitored channel", zap.Int64("channel_id", post.Chat.ID))
		return ErrIgnored
	}
	msg, ok := telegram.ParseChannelMessage(post)
	if !ok {
		return ErrIgnored
	}
	if err := i.q.Put(ctx, msg); err != nil {
		return err
	}
	i.logger.Info("channel message queued", zap.Int64("message_id", msg.MessageID), zap.Int64("channel_id", msg.SourceChannelID))
	return nil
}

// Handle adapts Ingest to the bot's update handler.
func (i *Ingestor) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if err := i.Ingest(ctx, update); err != nil && !errors.Is(err, ErrIgnored) {
		i.logger.Error("failed to queue channel message", zap.Int64("update_id", update.ID), zap.Error(err))
	}
}
