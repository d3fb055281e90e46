package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func TestChannelPost(t *testing.T) {
	post := &models.Message{ID: 1, Chat: models.Chat{ID: -100, Type: models.ChatTypeChannel}}
	tests := []struct {
		name   string
		update *models.Update
		want   *models.Message
	}{
		{"nil update", nil, nil},
		{"channel post", &models.Update{ChannelPost: post}, post},
		{"channel typed message", &models.Update{Message: post}, post},
		{"private message", &models.Update{Message: &models.Message{Chat: models.Chat{Type: models.ChatTypePrivate}}}, nil},
		{"edited post", &models.Update{EditedChannelPost: post}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChannelPost(tt.update); got != tt.want {
				t.Errorf("ChannelPost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseChannelMessage(t *testing.T) {
	date := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		msg      *models.Message
		wantBody string
		wantOK   bool
	}{
		{"nil", nil, "", false},
		{"text", &models.Message{ID: 10, Date: int(date.Unix()), Text: "Flat on Elm St", Chat: models.Chat{ID: -100}}, "Flat on Elm St", true},
		{"caption", &models.Message{ID: 11, Date: int(date.Unix()), Caption: "photo of Oak Ave", Chat: models.Chat{ID: -100}}, "photo of Oak Ave", true},
		{"text wins over caption", &models.Message{ID: 12, Text: "text", Caption: "caption"}, "text", true},
		{"no body", &models.Message{ID: 13, Chat: models.Chat{ID: -100}}, "", false},
		{"whitespace", &models.Message{ID: 14, Text: "  \n"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseChannelMessage(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", got.Body, tt.wantBody)
			}
		})
	}

	got, _ := ParseChannelMessage(&models.Message{ID: 10, Date: int(date.Unix()), Text: "x", Chat: models.Chat{ID: -100}})
	if got.MessageID != 10 || got.SourceChannelID != -100 || !got.Timestamp.Equal(date) {
		t.Errorf("ParseChannelMessage() = %+v", got)
	}
}

func TestParseDestination(t *testing.T) {
	from := &models.User{ID: 7, FirstName: "Ann", LastName: "Lee", Username: "ann", LanguageCode: "ru"}
	private := models.Chat{ID: 70, Type: models.ChatTypePrivate}

	d, ok := ParseDestination(&models.Update{Message: &models.Message{From: from, Chat: private}})
	if !ok {
		t.Fatal("ParseDestination() ok = false")
	}
	if d.UserID != 7 || d.ChatID != 70 || d.DisplayName != "Ann Lee" || d.Username != "ann" || d.Locale != "ru" {
		t.Errorf("ParseDestination() = %+v", d)
	}

	tests := []struct {
		name   string
		update *models.Update
	}{
		{"nil", nil},
		{"no message", &models.Update{}},
		{"no sender", &models.Update{Message: &models.Message{Chat: private}}},
		{"group", &models.Update{Message: &models.Message{From: from, Chat: models.Chat{ID: -5, Type: models.ChatTypeGroup}}}},
		{"bot sender", &models.Update{Message: &models.Message{From: &models.User{ID: 1, IsBot: true}, Chat: private}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := ParseDestination(tt.update); ok {
				t.Error("ParseDestination() ok = true, want false")
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	bad := fmt.Errorf("%w, Bad Request: message to forward not found", bot.ErrorBadRequest)
	if !IsBadRequest(bad) {
		t.Error("IsBadRequest() = false for wrapped ErrorBadRequest")
	}
	if IsBadRequest(errors.New("network down")) {
		t.Error("IsBadRequest() = true for unrelated error")
	}

	flood := fmt.Errorf("send: %w", &bot.TooManyRequestsError{Message: "slow down", RetryAfter: 3})
	if d, ok := RetryAfter(flood); !ok || d != 3*time.Second {
		t.Errorf("RetryAfter() = %v, %v; want 3s", d, ok)
	}
	if _, ok := RetryAfter(bad); ok {
		t.Error("RetryAfter() ok for bad request")
	}
}
