package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"matchbot/internal/publisher"
)

var ErrBadHandle = errors.New("telegram: malformed handle")

// Ref locates a message inside a forum topic. Threads are topics; their
// handle points at the first message of the topic.
type Ref struct {
	ChatID    int64
	TopicID   int
	MessageID int
}

// Handle encodes r as "chat:topic:message".
func (r Ref) Handle() publisher.Handle {
	return publisher.Handle(fmt.Sprintf("%d:%d:%d", r.ChatID, r.TopicID, r.MessageID))
}

func ParseHandle(h publisher.Handle) (Ref, error) {
	parts := strings.Split(string(h), ":")
	if len(parts) != 3 {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadHandle, h)
	}
	chat, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || chat == 0 {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadHandle, h)
	}
	topic, err := strconv.Atoi(parts[1])
	if err != nil || topic < 0 {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadHandle, h)
	}
	msg, err := strconv.Atoi(parts[2])
	if err != nil || msg <= 0 {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadHandle, h)
	}
	return Ref{ChatID: chat, TopicID: topic, MessageID: msg}, nil
}

// URL returns the t.me link of the message. Only supergroups (ids with the
// -100 prefix) have private links; other chats yield "".
func (r Ref) URL() string {
	s := strconv.FormatInt(r.ChatID, 10)
	if !strings.HasPrefix(s, "-100") {
		return ""
	}
	internal := strings.TrimPrefix(s, "-100")
	if r.TopicID > 0 {
		return fmt.Sprintf("https://t.me/c/%s/%d/%d", internal, r.TopicID, r.MessageID)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, r.MessageID)
}

// parseBoard reads the board name as a chat id.
func parseBoard(board string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(board), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("telegram: board %q is not a chat id", board)
	}
	return id, nil
}
