package delivery

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/matheus3301/tgfilter/internal/telegram"
	"github.com/matheus3301/tgfilter/internal/wire"
	"go.uber.org/zap"
)

// Binder stores where a user can be reached.
type Binder interface {
	UpsertBinding(ctx context.Context, d wire.Destination) error
}

// Registrar records a chat binding for every private message the bot
// receives, so matches for that user are delivered to the latest chat.
type Registrar struct {
	binder Binder
	logger *zap.Logger
}

func NewRegistrar(binder Binder, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{binder: binder, logger: logger}
}

// Register stores the binding carried by update. It reports false for
// updates that are not private messages from a user.
func (r *Registrar) Register(ctx context.Context, update *models.Update) (bool, error) {
	d, ok := telegram.ParseDestination(update)
	if !ok {
		return false, nil
	}
	if err := r.binder.UpsertBinding(ctx, d); err != nil {
		return true, err
	}
	r.logger.Info("chat binding registered", zap.Int64("user_id", d.UserID), zap.Int64("chat_id", d.ChatID))
	return true, nil
}

// Handle adapts Register to the bot's default update handler.
func (r *Registrar) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if _, err := r.Register(ctx, update); err != nil {
		r.logger.Error("failed to register chat binding", zap.Int64("update_id", update.ID), zap.Error(err))
	}
}
