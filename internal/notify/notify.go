// Package notify delivers operator notifications.
//
// Delivery is fire-and-forget: Sink.Notify never blocks on the network and
// never reports failure. Senders do the actual I/O and are driven by Async,
// which queues, paces and drops.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Message struct {
	Level Level
	Event string // event id, if any
	Text  string
	At    time.Time
}

// Format renders a message as one line of plain text.
func (m Message) Format() string {
	var b strings.Builder
	switch m.Level {
	case LevelError:
		b.WriteString("[error] ")
	case LevelWarn:
		b.WriteString("[warn] ")
	}
	if m.Event != "" {
		fmt.Fprintf(&b, "event %s: ", m.Event)
	}
	b.WriteString(m.Text)
	return b.String()
}

// Sink accepts notifications without blocking.
type Sink interface {
	Notify(ctx context.Context, m Message)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Message)     {}
func (Nop) Send(context.Context, Message) error { return nil }

// Multi sends to every sender and returns the first error.
type Multi []Sender

func (m Multi) Send(ctx context.Context, msg Message) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Info, Warn and Error build and emit a message on s. A nil sink is allowed.
func Info(ctx context.Context, s Sink, event, format string, args ...any) {
	emit(ctx, s, LevelInfo, event, format, args...)
}

func Warn(ctx context.Context, s Sink, event, format string, args ...any) {
	emit(ctx, s, LevelWarn, event, format, args...)
}

func Error(ctx context.Context, s Sink, event, format string, args ...any) {
	emit(ctx, s, LevelError, event, format, args...)
}

func emit(ctx context.Context, s Sink, lvl Level, event, format string, args ...any) {
	if s == nil {
		return
	}
	s.Notify(ctx, Message{Level: lvl, Event: event, Text: fmt.Sprintf(format, args...), At: time.Now()})
}
