package match

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/provider"
)

// New returns an empty aggregate for id.
func New(id string) *Event { return &Event{ID: id, Phase: PhaseScheduled} }

// ProjectEvent copies the core event payload. An empty payload leaves e untouched.
func (e *Event) ProjectEvent(p provider.EventInfo) {
	if p.ID == 0 && p.HomeTeam.Name == "" && p.AwayTeam.Name == "" {
		return
	}
	if p.ID != 0 {
		e.ID = strconv.FormatInt(p.ID, 10)
	}
	if p.Slug != "" {
		e.Slug = p.Slug
	}
	if p.StartTimestamp > 0 {
		e.Kickoff = time.Unix(p.StartTimestamp, 0).UTC()
	}
	e.Competition = p.Tournament.Name
	if p.Venue != nil {
		e.Venue = strings.TrimSpace(strings.Join(nonEmpty(p.Venue.Name, p.Venue.City), ", "))
	}
	if p.Referee != nil {
		e.Referee = p.Referee.Name
	}

	e.Home.ID, e.Home.Name, e.Home.ShortName = p.HomeTeam.ID, p.HomeTeam.Name, p.HomeTeam.ShortName
	e.Away.ID, e.Away.Name, e.Away.ShortName = p.AwayTeam.ID, p.AwayTeam.Name, p.AwayTeam.ShortName
	e.Home.Score = p.HomeScore.Current
	e.Away.Score = p.AwayScore.Current

	e.StatusText = p.Status.Description
	e.Minute, e.AddedTime = p.Clock.Minute, p.Clock.AddedTime
	switch strings.ToLower(p.Status.Type) {
	case "inprogress":
		e.Phase, e.Started, e.Final = PhaseInProgress, true, false
	case "finished":
		e.Phase, e.Started, e.Final = PhaseFinished, true, true
	case "postponed":
		e.Phase, e.Final = PhasePostponed, false
	case "canceled", "cancelled":
		// nothing more will happen; treat as final so loops terminate
		e.Phase, e.Final = PhaseCanceled, true
	default:
		e.Phase = PhaseScheduled
	}
	if e.Slug == "" {
		e.Slug = Slug(e.Home.Name, e.Away.Name)
	}
}

func (e *Event) ProjectLineups(p provider.LineupsResponse) {
	e.Confirmed = p.Confirmed
	e.Home.Lineup = projectLineup(p.Home)
	e.Away.Lineup = projectLineup(p.Away)
}

func projectLineup(s provider.LineupSide) Lineup {
	l := Lineup{Formation: s.Formation}
	for _, p := range s.Players {
		pl := Player{Name: p.Player.Name, Number: p.ShirtNumber, Position: p.Position, Captain: p.Captain}
		if p.Substitute {
			l.Bench = append(l.Bench, pl)
		} else {
			l.Starters = append(l.Starters, pl)
		}
	}
	return l
}

// ProjectStatistics keeps the whole-match period only.
func (e *Event) ProjectStatistics(p provider.StatisticsResponse) {
	e.Stats = e.Stats[:0]
	for _, period := range p.Statistics {
		if !strings.EqualFold(period.Period, "ALL") {
			continue
		}
		for _, g := range period.Groups {
			for _, it := range g.StatisticsItems {
				e.Stats = append(e.Stats, Stat{Name: it.Name, Home: it.Home, Away: it.Away})
			}
		}
	}
}

// ProjectIncidents rebuilds the feed in chronological order.
func (e *Event) ProjectIncidents(p provider.IncidentsResponse) {
	e.Feed = e.Feed[:0]
	for _, in := range p.Incidents {
		if in.IncidentType == "" {
			continue
		}
		e.Feed = append(e.Feed, FeedEntry{
			Minute:    in.Time,
			AddedTime: in.AddedTime,
			Kind:      in.IncidentType,
			Home:      in.IsHome,
			Text:      incidentText(in),
		})
	}
	sort.SliceStable(e.Feed, func(i, j int) bool {
		a, b := e.Feed[i], e.Feed[j]
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.AddedTime < b.AddedTime
	})
}

func incidentText(in provider.Incident) string {
	if in.Text != "" {
		return in.Text
	}
	switch in.IncidentType {
	case "goal":
		s := "Goal"
		if in.Player != nil {
			s += " " + in.Player.Name
		}
		if in.HomeScore != nil && in.AwayScore != nil {
			s += fmt.Sprintf(" (%d-%d)", *in.HomeScore, *in.AwayScore)
		}
		return s
	case "card":
		s := strings.TrimSpace(in.IncidentClass + " card")
		if in.Player != nil {
			s += " " + in.Player.Name
		}
		return s
	case "substitution":
		var in1, out1 string
		if in.PlayerIn != nil {
			in1 = in.PlayerIn.Name
		}
		if in.PlayerOut != nil {
			out1 = in.PlayerOut.Name
		}
		return fmt.Sprintf("Sub: %s for %s", in1, out1)
	default:
		return in.IncidentType
	}
}

func (e *Event) ProjectBroadcasts(p provider.BroadcastsResponse) {
	e.Broadcasts = e.Broadcasts[:0]
	for _, b := range p.Broadcasts {
		if b.Channel == "" {
			continue
		}
		e.Broadcasts = append(e.Broadcasts, Broadcaster{Country: b.Country, Channel: b.Channel, URL: b.URL})
	}
}

func (e *Event) ProjectForm(p provider.FormResponse) {
	e.Home.Form, e.Home.Position = p.Home.Form, p.Home.Position
	e.Away.Form, e.Away.Position = p.Away.Form, p.Away.Position
}

func (e *Event) ProjectPreview(p provider.PreviewResponse) {
	e.Preview = strings.TrimSpace(p.Preview.Text)
}

// AddInvalid records field paths reported by the decoder, prefixed by endpoint.
func (e *Event) AddInvalid(endpoint string, fields []string) {
	for _, f := range fields {
		e.Invalid = append(e.Invalid, endpoint+":"+f)
	}
}

// Slug builds a lowercase "home-vs-away" identifier.
func Slug(home, away string) string {
	clean := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		var b strings.Builder
		dash := false
		for _, r := range s {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
				dash = false
				continue
			}
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
		return strings.TrimRight(b.String(), "-")
	}
	h, a := clean(home), clean(away)
	if h == "" && a == "" {
		return ""
	}
	return h + "-vs-" + a
}

func nonEmpty(ss ...string) []string {
	out := ss[:0]
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
