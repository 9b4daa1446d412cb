package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mercsync/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The chat ID is parsed before any network call to the bot API.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

type fakeSender struct {
	failures int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("flood wait")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func TestSendRetries(t *testing.T) {
	sender := &fakeSender{failures: 2}
	c := newClient(sender, 42, 3, time.Millisecond)

	if err := c.SendRecovery(4); err != nil {
		t.Fatalf("SendRecovery() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != "MarkdownV2" {
		t.Errorf("unexpected message config: chat=%d mode=%q", msg.ChatID, msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "after 4 consecutive") {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestSendGivesUp(t *testing.T) {
	sender := &fakeSender{failures: 5}
	c := newClient(sender, 42, 2, time.Millisecond)
	if err := c.SendError(errors.New("boom")); err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestSendErrorEscapes(t *testing.T) {
	sender := &fakeSender{}
	c := newClient(sender, 1, 1, time.Millisecond)
	if err := c.SendError(errors.New("GET https://play.mercatorio.io/api/clock: 500")); err != nil {
		t.Fatalf("SendError() error = %v", err)
	}
	if !strings.Contains(sender.sent[0].Text, "play\\.mercatorio\\.io") {
		t.Errorf("error text not escaped: %q", sender.sent[0].Text)
	}
}

func TestFormatSynced(t *testing.T) {
	rec := models.SyncRecord{Turn: 812, Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Records: 57}
	got := formatSynced(rec)
	want := "🔄 *Turn 812 synced*\n📦 57 records\n📅 2024\\-05\\-01 12:00:00 UTC"
	if got != want {
		t.Errorf("formatSynced() = %q, want %q", got, want)
	}
}

func TestHandleCommand(t *testing.T) {
	sender := &fakeSender{}
	c := newClient(sender, 1, 1, time.Millisecond)

	c.handleCommand(7, "status") // no reporter installed
	c.handleCommand(7, "ping")
	c.SetStatus(func() string { return "idle, last turn 812" })
	c.handleCommand(7, "status")
	c.handleCommand(7, "unknown")

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d replies, want 2", len(sender.sent))
	}
	if sender.sent[0].Text != "Pong" || sender.sent[1].Text != "idle, last turn 812" {
		t.Errorf("unexpected replies: %q, %q", sender.sent[0].Text, sender.sent[1].Text)
	}
	if sender.sent[1].ChatID != 7 {
		t.Errorf("reply chat = %d, want 7", sender.sent[1].ChatID)
	}
}
