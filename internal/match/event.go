// Package match holds the in-memory Event aggregate rebuilt on every poll.
package match

import "time"

type Phase string

const (
	PhaseScheduled  Phase = "scheduled"
	PhaseInProgress Phase = "inprogress"
	PhaseFinished   Phase = "finished"
	PhasePostponed  Phase = "postponed"
	PhaseCanceled   Phase = "canceled"
)

type Side struct {
	ID        int64
	Name      string
	ShortName string
	Score     *int
	Form      []string
	Position  int
	Lineup    Lineup
}

// DisplayName prefers the short name when the provider has one.
func (s Side) DisplayName() string {
	if s.ShortName != "" {
		return s.ShortName
	}
	return s.Name
}

type Lineup struct {
	Formation string
	Starters  []Player
	Bench     []Player
}

type Player struct {
	Name     string
	Number   int
	Position string
	Captain  bool
}

type Broadcaster struct {
	Country string
	Channel string
	URL     string
}

// FeedEntry is one narrative incident (goal, card, substitution...).
type FeedEntry struct {
	Minute    int
	AddedTime int
	Kind      string
	Home      bool
	Text      string
}

type Stat struct {
	Name string
	Home string
	Away string
}

// Event is one match. Only ID is stable; every other field is a projection of
// the latest provider payloads.
type Event struct {
	ID          string
	Slug        string
	Kickoff     time.Time
	Competition string
	Venue       string
	Referee     string

	Home Side
	Away Side

	Phase       Phase
	StatusText  string
	Minute      int
	AddedTime   int
	Started     bool
	Final       bool
	Confirmed   bool // lineups confirmed
	Preview     string
	Broadcasts  []Broadcaster
	Feed        []FeedEntry
	Stats       []Stat
	StreamLink  string
	Invalid     []string // field paths that failed validation
	FetchErrors []string // per-call failures of the last fetch
}

// MissingCritical reports whether the event lacks identity fields that every
// rendered thread depends on.
func (e *Event) MissingCritical() []string {
	var out []string
	if e.ID == "" {
		out = append(out, "id")
	}
	if e.Home.Name == "" {
		out = append(out, "home")
	}
	if e.Away.Name == "" {
		out = append(out, "away")
	}
	return out
}
