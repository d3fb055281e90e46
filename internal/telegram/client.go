// Package telegram adapts the Bot API client to tgfilter's processes.
package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/matheus3301/tgfilter/internal/wire"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Client wraps a long-polling bot.
type Client struct {
	bot    *bot.Bot
	logger *zap.Logger
}

// Options configure New.
type Options struct {
	Token   string
	APIURL  string   // empty uses api.telegram.org
	Updates []string // allowed update types; empty keeps the Bot API default
	Handler bot.HandlerFunc
	// Sequential runs Handler on the polling goroutine, one update at a
	// time in arrival order. A blocking handler then also stops polling.
	Sequential bool
}

// New creates a client and checks the token with getMe.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.Token == "" {
		return nil, oops.In("telegram").Errorf("bot token is empty")
	}
	var botOpts []bot.Option
	if opts.Handler != nil {
		botOpts = append(botOpts, bot.WithDefaultHandler(opts.Handler))
	}
	if opts.Sequential {
		botOpts = append(botOpts, bot.WithNotAsyncHandlers())
	}
	if opts.APIURL != "" {
		botOpts = append(botOpts, bot.WithServerURL(opts.APIURL))
	}
	if len(opts.Updates) > 0 {
		botOpts = append(botOpts, bot.WithAllowedUpdates(bot.AllowedUpdates(opts.Updates)))
	}
	b, err := bot.New(opts.Token, botOpts...)
	if err != nil {
		return nil, oops.In("telegram").Wrapf(err, "create bot")
	}
	return &Client{bot: b, logger: logger}, nil
}

// Start long-polls updates until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.logger.Info("telegram polling started")
	c.bot.Start(ctx)
	c.logger.Info("telegram polling stopped")
}

// Forward forwards the job's original channel message to its destination.
func (c *Client) Forward(ctx context.Context, job wire.ForwardingJob) error {
	_, err := c.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     job.Destination.ChatID,
		FromChatID: job.Message.SourceChannelID,
		MessageID:  int(job.Message.MessageID),
	})
	return err
}

// SendText sends the job's message body as a plain text message.
func (c *Client) SendText(ctx context.Context, job wire.ForwardingJob) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: job.Destination.ChatID,
		Text:   job.Message.Body,
	})
	return err
}

// IsBadRequest reports a request Telegram refused, such as a forward whose
// source message or chat no longer exists.
func IsBadRequest(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest)
}

// RetryAfter returns the flood-wait Telegram asked for, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return time.Duration(tooMany.RetryAfter) * time.Second, true
	}
	return 0, false
}
