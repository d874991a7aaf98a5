// Package telegram publishes match threads into a Telegram forum supergroup.
//
// A board is a chat id, a thread is a forum topic whose first message holds
// the rendered body, sticky is a pin and a distinguished comment is a silent pin.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"matchbot/internal/publisher"
	rtsup "matchbot/internal/runtime/supervisor"
	logx "matchbot/pkg/logx"
)

type Options struct {
	Token       string
	PollTimeout time.Duration
	Log         logx.Logger
}

// botAPI is the part of *tele.Bot that thread creation goes through.
type botAPI interface {
	CreateTopic(chat *tele.Chat, topic *tele.Topic) (*tele.Topic, error)
	DeleteTopic(chat *tele.Chat, topic *tele.Topic) error
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Adapter struct {
	bot *tele.Bot
	api botAPI
	log logx.Logger

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{bot: b, api: b, log: log.With(logx.String("comp", "telegram"))}, nil
}

// Submit opens a topic named title in the board chat and posts body into it.
// When the body cannot be posted the topic is deleted again, so a retried
// Submit does not leave an empty topic behind.
func (a *Adapter) Submit(ctx context.Context, board, title, body string) (publisher.Handle, error) {
	chatID, err := parseBoard(board)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat := &tele.Chat{ID: chatID}
	topic, err := a.api.CreateTopic(chat, &tele.Topic{Name: topicName(title)})
	if err != nil {
		return "", classify("create topic", err)
	}
	first, err := a.send(ctx, chat, topic.ThreadID, nil, body)
	if err != nil {
		if derr := a.api.DeleteTopic(chat, topic); derr != nil {
			a.log.Warn("orphan topic not deleted",
				logx.Int64("chat_id", chatID),
				logx.Int("topic_id", topic.ThreadID),
				logx.Err(derr),
			)
		}
		return "", err
	}
	ref := Ref{ChatID: chatID, TopicID: topic.ThreadID, MessageID: first}
	a.log.Debug("topic created", logx.String("handle", string(ref.Handle())), logx.String("title", title))
	return ref.Handle(), nil
}

// Edit replaces the first message of the thread. Bodies over the message
// limit are truncated so that repeated edits do not spawn new messages.
func (a *Adapter) Edit(ctx context.Context, h publisher.Handle, body string) error {
	ref, err := ParseHandle(h)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chunks := splitText(body, textLimit)
	if len(chunks) > 1 {
		a.log.Warn("edit body truncated", logx.String("handle", string(h)), logx.Int("chunks", len(chunks)))
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err = a.bot.Edit(m, chunks[0], &tele.SendOptions{DisableWebPagePreview: true})
	if notModified(err) {
		return nil
	}
	return classify("edit", err)
}

// Reply posts body into the thread's topic as a reply to its first message.
func (a *Adapter) Reply(ctx context.Context, h publisher.Handle, body string) (publisher.Handle, error) {
	ref, err := ParseHandle(h)
	if err != nil {
		return "", err
	}
	chat := &tele.Chat{ID: ref.ChatID}
	to := &tele.Message{ID: ref.MessageID, Chat: chat}
	id, err := a.send(ctx, chat, ref.TopicID, to, body)
	if err != nil {
		return "", err
	}
	return Ref{ChatID: ref.ChatID, TopicID: ref.TopicID, MessageID: id}.Handle(), nil
}

func (a *Adapter) Sticky(ctx context.Context, h publisher.Handle) error {
	return a.pin(ctx, h, false)
}

func (a *Adapter) Distinguish(ctx context.Context, h publisher.Handle) error {
	return a.pin(ctx, h, true)
}

func (a *Adapter) Unsticky(ctx context.Context, h publisher.Handle) error {
	ref, err := ParseHandle(h)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify("unpin", a.bot.Unpin(&tele.Chat{ID: ref.ChatID}, ref.MessageID))
}

func (a *Adapter) pin(ctx context.Context, h publisher.Handle, silent bool) error {
	ref, err := ParseHandle(h)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if silent {
		return classify("pin", a.bot.Pin(m, tele.Silent))
	}
	return classify("pin", a.bot.Pin(m))
}

// URL implements publisher.Linker.
func (a *Adapter) URL(h publisher.Handle) string {
	ref, err := ParseHandle(h)
	if err != nil {
		return ""
	}
	return ref.URL()
}

// SendText implements notify.TextSender.
func (a *Adapter) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.send(ctx, &tele.Chat{ID: chatID}, threadID, nil, text)
	return err
}

// send posts text in chunks and returns the id of the first message.
func (a *Adapter) send(ctx context.Context, chat *tele.Chat, threadID int, replyTo *tele.Message, text string) (int, error) {
	first := 0
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: threadID}
		if i == 0 && replyTo != nil {
			opt.ReplyTo = replyTo
		}
		msg, err := a.api.Send(chat, chunk, opt)
		if err != nil {
			if first != 0 {
				a.log.Warn("partial send", logx.Int64("chat_id", chat.ID), logx.Int("sent", i), logx.Err(err))
			}
			return first, classify("send", err)
		}
		if i == 0 {
			first = msg.ID
		}
	}
	return first, nil
}

// Start begins long polling for operator commands. Publishing does not need
// it. Start is a no-op when already running.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))

	a.sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})
	a.sup.GoRestart("telebot.poll", 500*time.Millisecond, 10*time.Second, func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() == nil {
			return errors.New("poller exited")
		}
		return nil
	})
}

// Stop ends polling, waiting at most two seconds or until ctx expires.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.running = false
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

// topicName trims title to the 128 character topic name limit.
func topicName(title string) string {
	rs := []rune(strings.TrimSpace(title))
	if len(rs) > 128 {
		rs = rs[:128]
	}
	return string(rs)
}
