package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Placeholder text shown when a source field is absent.
const (
	TypePlaceholder        = "Emergenza"
	TypeDetailsUnreadable  = "Segnalazione Generica"
	DescPlaceholder        = "Nessuna descrizione"
	AddressPlaceholder     = "Indirizzo non disponibile"
	BloodPlaceholder       = "N/A"
	NoMedicalInfo          = "Nessuna info medica"
	AnonymousUserName      = "Utente App"
	RequestIDPrefix        = "REQ-"
	anonymousRequestMarker = "anon-"
)

// StaticAssetPrefix marks site-hosted photos. Raw base64 may itself start
// with "/" (JPEG data begins "/9j/"), so only this prefix is a path.
const StaticAssetPrefix = "/static/"

// RawEmergency is an untrusted emergency payload. Its schema varies by
// source and backend version; see the package documentation.
type RawEmergency map[string]any

// Priority is the triage bucket of a request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities for sorting: high > medium > low > unknown.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority accepts "low", "medium" or "high" in any case.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	default:
		return "", false
	}
}

// Location is a WGS-84 coordinate pair. (0,0) means unknown.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the location is the (0,0) unknown sentinel.
func (l Location) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0
}

// Age is a patient's age in whole years, or unknown. It serializes as a
// JSON number when known and as "N/A" otherwise.
type Age struct {
	years int
	known bool
}

// AgeOf returns a known age.
func AgeOf(years int) Age { return Age{years: years, known: true} }

// UnknownAge returns the "N/A" age.
func UnknownAge() Age { return Age{} }

// Years returns the age and whether it is known.
func (a Age) Years() (int, bool) { return a.years, a.known }

func (a Age) String() string {
	if !a.known {
		return "N/A"
	}
	return strconv.Itoa(a.years)
}

func (a Age) MarshalJSON() ([]byte, error) {
	if !a.known {
		return []byte(`"N/A"`), nil
	}
	return []byte(strconv.Itoa(a.years)), nil
}

func (a *Age) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*a = AgeOf(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode age: %w", err)
	}
	*a = UnknownAge()
	return nil
}

// Patient holds the reporting person's medical card.
type Patient struct {
	Name       string   `json:"name"`
	Age        Age      `json:"age"`
	Blood      string   `json:"blood"`
	Conditions []string `json:"conditions"`
}

// GeoEnrichment records the outcome of optional geocoding.
type GeoEnrichment struct {
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Source           string  `json:"source,omitempty"` // "forward", "reverse", "original", "failed"
}

// Request is the canonical record consumed by every renderer.
type Request struct {
	ID           string        `json:"id"`
	Time         string        `json:"time"`
	Type         string        `json:"type"`
	Desc         string        `json:"desc"`
	Address      string        `json:"address"`
	Priority     Priority      `json:"priority"`
	Location     Location      `json:"location"`
	Photo        *string       `json:"photo"`
	User         Patient       `json:"user"`
	Geo          GeoEnrichment `json:"geo,omitzero"`
	OriginalData RawEmergency  `json:"originalData"`
}

// ActionKind names an operator action triggered from the detail view.
type ActionKind string

const (
	ActionContact  ActionKind = "contact"
	ActionDispatch ActionKind = "dispatch"
)

// ParseActionKind accepts "contact" or "dispatch".
func ParseActionKind(s string) (ActionKind, bool) {
	switch ActionKind(s) {
	case ActionContact, ActionDispatch:
		return ActionKind(s), true
	default:
		return "", false
	}
}

// Action is an operator decision about one request.
type Action struct {
	RequestID string     `json:"request_id"`
	Kind      ActionKind `json:"action"`
	Priority  Priority   `json:"priority"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	At        time.Time  `json:"at"`
}

// NewAction stamps an action for req with the package clock.
func NewAction(req Request, kind ActionKind) Action {
	return Action{
		RequestID: req.ID,
		Kind:      kind,
		Priority:  req.Priority,
		Lat:       req.Location.Lat,
		Lng:       req.Location.Lng,
		At:        clock.Now().UTC(),
	}
}

// MaxPushBytes bounds one pushed payload on every intake path. Photos
// arrive inline as base64.
const MaxPushBytes = 10 << 20

// PushMessage is one pushed payload read from a message broker, with the
// callback that acknowledges it.
type PushMessage struct {
	Payload   []byte
	Key       []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
	Commit    func(ctx context.Context) error
}
