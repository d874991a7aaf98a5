package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"matchbot/internal/publisher"
	"matchbot/internal/registry"
	logx "matchbot/pkg/logx"
)

func TestHandleRoundTrip(t *testing.T) {
	t.Parallel()
	ref := Ref{ChatID: -1001234567890, TopicID: 42, MessageID: 43}
	assert.Equal(t, publisher.Handle("-1001234567890:42:43"), ref.Handle())

	got, err := ParseHandle(ref.Handle())
	require.NoError(t, err)
	assert.Equal(t, ref, got)
	assert.Equal(t, "https://t.me/c/1234567890/42/43", got.URL())
}

func TestParseHandleRejects(t *testing.T) {
	t.Parallel()
	for _, h := range []publisher.Handle{"", "thread-1", "1:2", "a:1:2", "0:1:2", "-100:1:0", "-100:-1:5", "1:2:3:4"} {
		_, err := ParseHandle(h)
		assert.ErrorIs(t, err, ErrBadHandle, "handle %q", h)
	}
}

func TestURLNeedsSupergroup(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Ref{ChatID: 12345, MessageID: 1}.URL())
	assert.Equal(t, "https://t.me/c/77/9", Ref{ChatID: -10077, MessageID: 9}.URL())
}

func TestParseBoard(t *testing.T) {
	t.Parallel()
	id, err := parseBoard(" -1001 ")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001), id)
	_, err = parseBoard("soccer")
	assert.Error(t, err)
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	line := strings.Repeat("x", 6)
	s := strings.Join([]string{line, line, line}, "\n")
	chunks := splitText(s, 10)
	assert.Equal(t, []string{line, line, line}, chunks)

	long := strings.Repeat("y", 25)
	chunks = splitText(long, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.NoError(t, classify("send", nil))
	assert.True(t, publisher.IsTransient(classify("send", &tele.Error{Code: 502, Description: "Bad Gateway"})))
	assert.True(t, publisher.IsTransient(classify("send", errors.New("telegram: Too Many Requests: retry after 5 (429)"))))
	assert.False(t, publisher.IsTransient(classify("send", &tele.Error{Code: 400, Description: "Bad Request: chat not found"})))
	assert.True(t, notModified(fmt.Errorf("x: %w", errors.New("Bad Request: message is not modified"))))
}

func TestTopicName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Match Thread", topicName("  Match Thread "))
	assert.Len(t, []rune(topicName(strings.Repeat("é", 200))), 128)
}

func TestFormatThreads(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "no threads", FormatThreads(nil))
	out := FormatThreads(map[string]registry.ThreadRecord{
		"E2": {Slug: "b-vs-c"},
		"E1": {Slug: "a-vs-b", Pre: "1:2:3", StreamOverride: "https://s"},
	})
	assert.Equal(t, "E1 a-vs-b pre=1:2:3 live=- post=- stream=https://s\nE2 b-vs-c pre=- live=- post=-", out)
}

func TestCommandOwners(t *testing.T) {
	t.Parallel()
	c := NewCommands(nil, []int64{7}, logx.Nop())
	assert.True(t, c.isOwner(7))
	assert.False(t, c.isOwner(8))
	c.SetOwners([]int64{8})
	assert.True(t, c.isOwner(8))
}

type fakeAPI struct {
	mu        sync.Mutex
	created   int
	deleted   []int
	sends     int
	failSends int // the first failSends sends fail with 429
}

func (f *fakeAPI) CreateTopic(_ *tele.Chat, topic *tele.Topic) (*tele.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &tele.Topic{Name: topic.Name, ThreadID: 100 + f.created}, nil
}

func (f *fakeAPI) DeleteTopic(_ *tele.Chat, topic *tele.Topic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, topic.ThreadID)
	return nil
}

func (f *fakeAPI) Send(_ tele.Recipient, _ interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sends <= f.failSends {
		return nil, &tele.Error{Code: 429, Description: "Too Many Requests: retry after 1"}
	}
	return &tele.Message{ID: 500 + f.sends}, nil
}

func TestSubmitRetryLeavesOneTopic(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{failSends: 1}
	a := &Adapter{api: api, log: logx.Nop()}
	pub := publisher.New(a, publisher.Options{
		Settle: 0,
		Sleep:  func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		Log:    logx.Nop(),
	})

	h, err := pub.Submit(context.Background(), "-100123", "Match Thread: A vs B", "body", false, "")
	require.NoError(t, err)
	assert.Equal(t, publisher.Handle("-100123:102:502"), h)
	assert.Equal(t, 2, api.created)
	assert.Equal(t, []int{101}, api.deleted, "the topic whose body failed is removed")
}

func TestSubmitCreateTopicFailure(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	a := &Adapter{api: api, log: logx.Nop()}
	_, err := a.Submit(context.Background(), "not-a-chat", "t", "b")
	require.Error(t, err)
	assert.Zero(t, api.created)
}
