package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Webhook posts {"content": "..."} to a URL (Discord/Slack-compatible).
type Webhook struct {
	URL    string
	Client *http.Client
}

func (w Webhook) Send(ctx context.Context, m Message) error {
	if strings.TrimSpace(w.URL) == "" {
		return nil
	}
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(map[string]string{"content": m.Format()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c := w.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook status %d", resp.StatusCode)
	}
	return nil
}

// TextSender is the part of the telegram adapter used for notifications.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Telegram sends notifications into a chat, optionally inside a forum topic.
type Telegram struct {
	Bot      TextSender
	ChatID   int64
	ThreadID int
}

func (t Telegram) Send(ctx context.Context, m Message) error {
	if t.Bot == nil || t.ChatID == 0 {
		return nil
	}
	return t.Bot.SendText(ctx, t.ChatID, t.ThreadID, m.Format())
}
