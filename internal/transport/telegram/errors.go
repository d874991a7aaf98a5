package telegram

import (
	"errors"
	"fmt"
	"net"
	"strings"

	tele "gopkg.in/telebot.v4"

	"matchbot/internal/publisher"
)

// classify marks rate limiting, server-side failures and network errors as
// transient for the publisher's retry loop.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after") {
		return fmt.Errorf("telegram %s: %w: %w", op, publisher.ErrTransient, err)
	}
	var te *tele.Error
	if errors.As(err, &te) {
		if te.Code >= 500 || te.Code == 429 {
			return fmt.Errorf("telegram %s: %w: %w", op, publisher.ErrTransient, err)
		}
		return fmt.Errorf("telegram %s: %w", op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("telegram %s: %w: %w", op, publisher.ErrTransient, err)
	}
	return fmt.Errorf("telegram %s: %w", op, err)
}

func notModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
