package field

import "time"

// EventType is a field-agent milestone. CLOSE is deliberately absent:
// closing a dispatch requires a dispatcher-side cost review.
type EventType string

const (
	EventStartTrip    EventType = "START_TRIP"
	EventArriveOnSite EventType = "ARRIVE_ON_SITE"
	EventRequestClose EventType = "REQUEST_CLOSE"
)

// Session is a time-boxed bearer grant letting a field agent post milestones
// and GPS samples for one dispatch.
type Session struct {
	ID               string
	DispatchID       string
	TokenHash        string
	ExpiresAt        time.Time
	AllowClose       bool
	StartedAt        *time.Time
	ArrivedAt        *time.Time
	CloseRequestedAt *time.Time
	ClosedAt         *time.Time
	CreatedAt        time.Time
}

// Expired reports whether the session's hard expiry has passed.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Event is one recorded milestone under a session.
type Event struct {
	ID             string
	FieldSessionID string
	Type           EventType
	Meta           map[string]any
	OccurredAt     time.Time
}

// GPSPoint is one location sample. Ordering is by RecordedAt, never by
// insertion order.
type GPSPoint struct {
	ID             string
	FieldSessionID string
	Latitude       float64
	Longitude      float64
	AccuracyM      *float64
	SpeedMps       *float64
	RecordedAt     time.Time
	CreatedAt      time.Time
}

// GPSSample is one inbound location sample.
type GPSSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  *float64  `json:"accuracy_m"`
	SpeedMps   *float64  `json:"speed_mps"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CreateSessionRequest is the dispatcher command issuing a session.
type CreateSessionRequest struct {
	DispatchID     string
	ExpiresMinutes int
	AllowClose     bool
}

// IssuedSession carries the one-time raw token alongside the stored session.
type IssuedSession struct {
	Session Session
	Token   string
	Link    string
}
