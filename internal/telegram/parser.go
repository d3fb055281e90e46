package telegram

import (
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/matheus3301/tgfilter/internal/wire"
)

// ChannelPost returns the channel post carried by an update, new or edited
// posts excluded.
func ChannelPost(update *models.Update) *models.Message {
	if update == nil {
		return nil
	}
	if update.ChannelPost != nil {
		return update.ChannelPost
	}
	if update.Message != nil && update.Message.Chat.Type == models.ChatTypeChannel {
		return update.Message
	}
	return nil
}

// ParseChannelMessage normalizes a channel post. Text posts use their text,
// media posts their caption. Posts without either are not matchable and
// yield false.
func ParseChannelMessage(msg *models.Message) (wire.ChannelMessage, bool) {
	if msg == nil {
		return wire.ChannelMessage{}, false
	}
	body := msg.Text
	if body == "" {
		body = msg.Caption
	}
	if strings.TrimSpace(body) == "" {
		return wire.ChannelMessage{}, false
	}
	return wire.ChannelMessage{
		MessageID:       int64(msg.ID),
		SourceChannelID: msg.Chat.ID,
		Body:            body,
		Timestamp:       time.Unix(int64(msg.Date), 0).UTC(),
	}, true
}

// ParseDestination extracts the sender of a private message as a delivery
// destination.
func ParseDestination(update *models.Update) (wire.Destination, bool) {
	if update == nil || update.Message == nil || update.Message.From == nil {
		return wire.Destination{}, false
	}
	msg := update.Message
	if msg.Chat.Type != models.ChatTypePrivate || msg.From.IsBot {
		return wire.Destination{}, false
	}
	return wire.Destination{
		UserID:      msg.From.ID,
		ChatID:      msg.Chat.ID,
		DisplayName: displayName(msg.From),
		Username:    msg.From.Username,
		Locale:      msg.From.LanguageCode,
	}, true
}

func displayName(u *models.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
