package telegram

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"matchbot/internal/registry"
	logx "matchbot/pkg/logx"
)

// Threads is the registry surface the operator commands need.
type Threads interface {
	All() map[string]registry.ThreadRecord
	SetStreamOverride(id, link string) (registry.ThreadRecord, error)
}

// Commands serves /threads and /stream to owner accounts.
type Commands struct {
	threads Threads
	owners  atomic.Pointer[[]int64]
	log     logx.Logger
}

func NewCommands(threads Threads, owners []int64, log logx.Logger) *Commands {
	c := &Commands{threads: threads, log: log.With(logx.String("comp", "telegram.commands"))}
	c.SetOwners(owners)
	return c
}

// SetOwners replaces the owner list. Safe to call while serving.
func (c *Commands) SetOwners(owners []int64) {
	cp := slices.Clone(owners)
	c.owners.Store(&cp)
}

func (c *Commands) isOwner(id int64) bool {
	p := c.owners.Load()
	return p != nil && slices.Contains(*p, id)
}

// Register installs the handlers on the adapter's bot.
func (a *Adapter) Register(c *Commands) {
	a.bot.Handle("/threads", c.guard(c.listThreads))
	a.bot.Handle("/stream", c.guard(c.setStream))
}

func (c *Commands) guard(next tele.HandlerFunc) tele.HandlerFunc {
	return func(ctx tele.Context) error {
		u := ctx.Sender()
		if u == nil || !c.isOwner(u.ID) {
			c.log.Debug("command rejected", logx.String("text", ctx.Text()))
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("panic recovered", logx.Any("panic", r))
			}
		}()
		return next(ctx)
	}
}

func (c *Commands) listThreads(ctx tele.Context) error {
	return ctx.Send(FormatThreads(c.threads.All()), &tele.SendOptions{DisableWebPagePreview: true})
}

func (c *Commands) setStream(ctx tele.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return ctx.Send("usage: /stream <event-id> <url|->")
	}
	id, link := args[0], args[1]
	if link == "-" {
		link = ""
	} else if u, err := url.Parse(link); err != nil || u.Scheme == "" || u.Host == "" {
		return ctx.Send("invalid url: " + link)
	}
	if _, err := c.threads.SetStreamOverride(id, link); err != nil {
		c.log.Warn("set stream failed", logx.String("event", id), logx.Err(err))
		return ctx.Send("failed: " + err.Error())
	}
	c.log.Info("stream override set", logx.String("event", id), logx.String("link", link))
	if link == "" {
		return ctx.Send("stream link cleared for " + id)
	}
	return ctx.Send("stream link set for " + id)
}

// FormatThreads renders the registry one event per line, sorted by id.
func FormatThreads(all map[string]registry.ThreadRecord) string {
	if len(all) == 0 {
		return "no threads"
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		r := all[id]
		fmt.Fprintf(&b, "%s %s pre=%s live=%s post=%s", id, r.Slug, orDash(r.Pre), orDash(r.Live), orDash(r.Post))
		if r.StreamOverride != "" {
			b.WriteString(" stream=" + r.StreamOverride)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
