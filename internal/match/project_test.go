package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbot/internal/provider"
)

func intp(v int) *int { return &v }

func TestProjectEvent(t *testing.T) {
	t.Parallel()
	e := New("42")
	e.ProjectEvent(provider.EventInfo{
		ID:             42,
		StartTimestamp: 1700000000,
		Tournament:     provider.Tournament{Name: "Premier League"},
		Venue:          &provider.Venue{Name: "Anfield", City: "Liverpool"},
		HomeTeam:       provider.Team{ID: 1, Name: "Liverpool FC", ShortName: "Liverpool"},
		AwayTeam:       provider.Team{ID: 2, Name: "Everton"},
		HomeScore:      provider.Score{Current: intp(2)},
		AwayScore:      provider.Score{Current: intp(0)},
		Status:         provider.Status{Type: "finished", Description: "Ended"},
	})

	assert.Equal(t, "42", e.ID)
	assert.Equal(t, "liverpool-fc-vs-everton", e.Slug)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), e.Kickoff)
	assert.Equal(t, "Anfield, Liverpool", e.Venue)
	assert.Equal(t, "Liverpool", e.Home.DisplayName())
	assert.True(t, e.Final)
	assert.Equal(t, PhaseFinished, e.Phase)
	require.NotNil(t, e.Home.Score)
	assert.Equal(t, 2, *e.Home.Score)
	assert.Empty(t, e.MissingCritical())
}

func TestProjectEventEmptyPayloadKeepsState(t *testing.T) {
	t.Parallel()
	e := New("1")
	e.Home.Name = "A"
	e.ProjectEvent(provider.EventInfo{})
	assert.Equal(t, "A", e.Home.Name)
	assert.Equal(t, []string{"away"}, e.MissingCritical())
}

func TestProjectIncidentsSorted(t *testing.T) {
	t.Parallel()
	e := New("1")
	e.ProjectIncidents(provider.IncidentsResponse{Incidents: []provider.Incident{
		{IncidentType: "goal", Time: 80, Player: &provider.PlayerName{Name: "Z"}, HomeScore: intp(1), AwayScore: intp(1)},
		{IncidentType: "card", IncidentClass: "yellow", Time: 12, Player: &provider.PlayerName{Name: "Y"}},
		{IncidentType: ""},
	}})
	require.Len(t, e.Feed, 2)
	assert.Equal(t, 12, e.Feed[0].Minute)
	assert.Equal(t, "yellow card Y", e.Feed[0].Text)
	assert.Equal(t, "Goal Z (1-1)", e.Feed[1].Text)
}

func TestProjectLineupsAndStats(t *testing.T) {
	t.Parallel()
	e := New("1")
	e.ProjectLineups(provider.LineupsResponse{
		Confirmed: true,
		Home: provider.LineupSide{Formation: "4-3-3", Players: []provider.LineupPlayer{
			{Player: provider.PlayerName{Name: "Keeper"}, ShirtNumber: 1},
			{Player: provider.PlayerName{Name: "Sub"}, Substitute: true},
		}},
	})
	assert.True(t, e.Confirmed)
	assert.Len(t, e.Home.Lineup.Starters, 1)
	assert.Len(t, e.Home.Lineup.Bench, 1)

	e.ProjectStatistics(provider.StatisticsResponse{Statistics: []provider.StatPeriod{
		{Period: "1ST", Groups: []provider.StatGroup{{StatisticsItems: []provider.StatItem{{Name: "Shots", Home: "1", Away: "0"}}}}},
		{Period: "ALL", Groups: []provider.StatGroup{{StatisticsItems: []provider.StatItem{{Name: "Shots", Home: "5", Away: "3"}}}}},
	}})
	require.Len(t, e.Stats, 1)
	assert.Equal(t, "5", e.Stats[0].Home)
}

func TestSlug(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a-c-milan-vs-inter", Slug("A.C. Milan", " Inter "))
	assert.Equal(t, "", Slug("", ""))
}
