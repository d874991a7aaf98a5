// Package render turns an Event into thread titles and bodies.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/match"
)

// Renderer produces the title and body for each thread phase.
type Renderer interface {
	Pre(e *match.Event) (title, body string)
	Live(e *match.Event) (title, body string)
	Post(e *match.Event) (title, body string)
}

// Plain renders simple text. Kickoff times are shown in Location (UTC when nil).
type Plain struct {
	Location *time.Location
}

var _ Renderer = Plain{}

func (p Plain) Pre(e *match.Event) (string, string) {
	title := fmt.Sprintf("Pre-Match Thread: %s vs %s", side(e.Home), side(e.Away))
	var b strings.Builder
	p.header(&b, e)
	if len(e.Home.Form) > 0 || len(e.Away.Form) > 0 {
		b.WriteString("\nForm\n")
		fmt.Fprintf(&b, "%s: %s\n", side(e.Home), formLine(e.Home))
		fmt.Fprintf(&b, "%s: %s\n", side(e.Away), formLine(e.Away))
	}
	if e.Preview != "" {
		b.WriteString("\nPreview\n")
		b.WriteString(e.Preview)
		b.WriteByte('\n')
	}
	broadcasts(&b, e)
	footer(&b, e)
	return title, strings.TrimRight(b.String(), "\n")
}

func (p Plain) Live(e *match.Event) (string, string) {
	title := fmt.Sprintf("Match Thread: %s vs %s", side(e.Home), side(e.Away))
	var b strings.Builder
	p.header(&b, e)
	fmt.Fprintf(&b, "\n%s %s %s  (%s)\n", side(e.Home), scoreLine(e), side(e.Away), clock(e))
	if e.StreamLink != "" {
		fmt.Fprintf(&b, "Stream: %s\n", e.StreamLink)
	}
	lineups(&b, e)
	feed(&b, e)
	stats(&b, e)
	broadcasts(&b, e)
	footer(&b, e)
	return title, strings.TrimRight(b.String(), "\n")
}

func (p Plain) Post(e *match.Event) (string, string) {
	title := fmt.Sprintf("Post-Match Thread: %s %s %s", side(e.Home), scoreLine(e), side(e.Away))
	var b strings.Builder
	p.header(&b, e)
	fmt.Fprintf(&b, "\nFull time: %s %s %s\n", side(e.Home), scoreLine(e), side(e.Away))
	feed(&b, e)
	stats(&b, e)
	footer(&b, e)
	return title, strings.TrimRight(b.String(), "\n")
}

func (p Plain) header(b *strings.Builder, e *match.Event) {
	if e.Competition != "" {
		fmt.Fprintf(b, "%s\n", e.Competition)
	}
	if !e.Kickoff.IsZero() {
		loc := p.Location
		if loc == nil {
			loc = time.UTC
		}
		fmt.Fprintf(b, "Kickoff: %s\n", e.Kickoff.In(loc).Format("Mon 2 Jan 15:04 MST"))
	}
	if e.Venue != "" {
		fmt.Fprintf(b, "Venue: %s\n", e.Venue)
	}
	if e.Referee != "" {
		fmt.Fprintf(b, "Referee: %s\n", e.Referee)
	}
}

func side(s match.Side) string {
	if n := s.DisplayName(); n != "" {
		return n
	}
	return "TBD"
}

func scoreLine(e *match.Event) string {
	return score(e.Home.Score) + "-" + score(e.Away.Score)
}

func score(p *int) string {
	if p == nil {
		return "?"
	}
	return strconv.Itoa(*p)
}

func clock(e *match.Event) string {
	switch {
	case e.Final:
		return "FT"
	case !e.Started:
		if e.StatusText != "" {
			return e.StatusText
		}
		return "not started"
	case e.AddedTime > 0:
		return fmt.Sprintf("%d+%d'", e.Minute, e.AddedTime)
	case e.Minute > 0:
		return fmt.Sprintf("%d'", e.Minute)
	}
	return e.StatusText
}

func formLine(s match.Side) string {
	if len(s.Form) == 0 {
		return "-"
	}
	out := strings.Join(s.Form, "")
	if s.Position > 0 {
		out += fmt.Sprintf(" (pos %d)", s.Position)
	}
	return out
}

func lineups(b *strings.Builder, e *match.Event) {
	if len(e.Home.Lineup.Starters) == 0 && len(e.Away.Lineup.Starters) == 0 {
		return
	}
	label := "Lineups"
	if !e.Confirmed {
		label = "Predicted lineups"
	}
	fmt.Fprintf(b, "\n%s\n", label)
	for _, s := range []match.Side{e.Home, e.Away} {
		names := make([]string, 0, len(s.Lineup.Starters))
		for _, pl := range s.Lineup.Starters {
			n := pl.Name
			if pl.Captain {
				n += " (c)"
			}
			names = append(names, n)
		}
		line := side(s)
		if s.Lineup.Formation != "" {
			line += " " + s.Lineup.Formation
		}
		fmt.Fprintf(b, "%s: %s\n", line, strings.Join(names, ", "))
	}
}

func feed(b *strings.Builder, e *match.Event) {
	if len(e.Feed) == 0 {
		return
	}
	b.WriteString("\nEvents\n")
	for _, f := range e.Feed {
		minute := strconv.Itoa(f.Minute)
		if f.AddedTime > 0 {
			minute += "+" + strconv.Itoa(f.AddedTime)
		}
		team := side(e.Away)
		if f.Home {
			team = side(e.Home)
		}
		fmt.Fprintf(b, "%s' %s %s: %s\n", minute, f.Kind, team, f.Text)
	}
}

func stats(b *strings.Builder, e *match.Event) {
	if len(e.Stats) == 0 {
		return
	}
	b.WriteString("\nStats\n")
	for _, s := range e.Stats {
		fmt.Fprintf(b, "%s %s %s\n", s.Home, s.Name, s.Away)
	}
}

func broadcasts(b *strings.Builder, e *match.Event) {
	if len(e.Broadcasts) == 0 {
		return
	}
	b.WriteString("\nWhere to watch\n")
	for _, bc := range e.Broadcasts {
		line := bc.Channel
		if bc.Country != "" {
			line = bc.Country + ": " + line
		}
		if bc.URL != "" {
			line += " " + bc.URL
		}
		b.WriteString(line + "\n")
	}
}

func footer(b *strings.Builder, e *match.Event) {
	if len(e.FetchErrors) > 0 {
		fmt.Fprintf(b, "\nSome data is unavailable (%s).\n", strings.Join(e.FetchErrors, ", "))
	}
}
