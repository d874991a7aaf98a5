package provider

// Wire shapes of provider responses. Fields tagged required are the ones the
// projection cannot do without; everything else is optional and may be absent.

type Team struct {
	ID        int64  `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	ShortName string `json:"shortName,omitempty"`
	Slug      string `json:"slug,omitempty"`
}

type Score struct {
	Current *int `json:"current,omitempty"`
	Period1 *int `json:"period1,omitempty"`
	Period2 *int `json:"period2,omitempty"`
}

type Status struct {
	Code        int    `json:"code"`
	Type        string `json:"type" validate:"required"` // notstarted, inprogress, finished, postponed, canceled
	Description string `json:"description,omitempty"`
}

type Tournament struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug,omitempty"`
}

type Venue struct {
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

type Clock struct {
	Minute    int `json:"minute,omitempty"`
	AddedTime int `json:"addedTime,omitempty"`
}

type EventInfo struct {
	ID             int64       `json:"id" validate:"required"`
	Slug           string      `json:"slug,omitempty"`
	StartTimestamp int64       `json:"startTimestamp" validate:"required"`
	Tournament     Tournament  `json:"tournament"`
	Venue          *Venue      `json:"venue,omitempty"`
	HomeTeam       Team        `json:"homeTeam"`
	AwayTeam       Team        `json:"awayTeam"`
	HomeScore      Score       `json:"homeScore"`
	AwayScore      Score       `json:"awayScore"`
	Status         Status      `json:"status"`
	Clock          Clock       `json:"time"`
	Referee        *PlayerName `json:"referee,omitempty"`
}

type EventResponse struct {
	Event EventInfo `json:"event"`
}

type ScheduleResponse struct {
	Events []EventInfo `json:"events" validate:"dive"`
}

type PlayerName struct {
	Name string `json:"name" validate:"required"`
}

type LineupPlayer struct {
	Player      PlayerName `json:"player"`
	ShirtNumber int        `json:"shirtNumber,omitempty"`
	Position    string     `json:"position,omitempty"`
	Substitute  bool       `json:"substitute,omitempty"`
	Captain     bool       `json:"captain,omitempty"`
}

type LineupSide struct {
	Formation string         `json:"formation,omitempty"`
	Players   []LineupPlayer `json:"players" validate:"dive"`
}

type LineupsResponse struct {
	Confirmed bool       `json:"confirmed"`
	Home      LineupSide `json:"home"`
	Away      LineupSide `json:"away"`
}

type StatItem struct {
	Name string `json:"name" validate:"required"`
	Home string `json:"home"`
	Away string `json:"away"`
}

type StatGroup struct {
	GroupName       string     `json:"groupName,omitempty"`
	StatisticsItems []StatItem `json:"statisticsItems" validate:"dive"`
}

type StatPeriod struct {
	Period string      `json:"period" validate:"required"` // ALL, 1ST, 2ND
	Groups []StatGroup `json:"groups" validate:"dive"`
}

type StatisticsResponse struct {
	Statistics []StatPeriod `json:"statistics" validate:"dive"`
}

type Incident struct {
	IncidentType  string      `json:"incidentType" validate:"required"` // goal, card, substitution, period, varDecision
	IncidentClass string      `json:"incidentClass,omitempty"`
	Time          int         `json:"time"`
	AddedTime     int         `json:"addedTime,omitempty"`
	IsHome        bool        `json:"isHome"`
	Player        *PlayerName `json:"player,omitempty"`
	PlayerIn      *PlayerName `json:"playerIn,omitempty"`
	PlayerOut     *PlayerName `json:"playerOut,omitempty"`
	Text          string      `json:"text,omitempty"`
	HomeScore     *int        `json:"homeScore,omitempty"`
	AwayScore     *int        `json:"awayScore,omitempty"`
}

type IncidentsResponse struct {
	Incidents []Incident `json:"incidents" validate:"dive"`
}

type Broadcast struct {
	Country string `json:"country,omitempty"`
	Channel string `json:"channel" validate:"required"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
}

type BroadcastsResponse struct {
	Broadcasts []Broadcast `json:"broadcasts" validate:"dive"`
}

type TeamForm struct {
	Form     []string `json:"form" validate:"dive,oneof=W D L"`
	Position int      `json:"position,omitempty"`
	Value    string   `json:"value,omitempty"`
}

type FormResponse struct {
	Home TeamForm `json:"homeTeam"`
	Away TeamForm `json:"awayTeam"`
}

type PreviewResponse struct {
	Preview struct {
		Text   string `json:"text" validate:"required"`
		Source string `json:"source,omitempty"`
	} `json:"preview"`
}
