package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/01/2006",
	}
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
	}
	// emptyHealthValues are entries that mean "nothing to report".
	emptyHealthValues = map[string]bool{
		"nessuna": true, "nessuno": true, "none": true, "no": true, "n/a": true, "-": true,
	}
)

// Normalizer maps RawEmergency payloads to canonical Requests.
// The zero value is not usable; construct with NewNormalizer.
type Normalizer struct {
	scale    Scale
	location *time.Location
	clock    clockwork.Clock
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithScale fixes the numeric score convention of the source.
func WithScale(s Scale) Option {
	return func(n *Normalizer) { n.scale = s }
}

// WithLocation sets the time zone used for display times and ages.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithClock overrides the package clock for this Normalizer.
func WithClock(c clockwork.Clock) Option {
	return func(n *Normalizer) { n.clock = c }
}

// NewNormalizer returns a Normalizer using the auto scale and local time
// unless configured otherwise.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{scale: ScaleAuto, location: time.Local}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps raw with the default Normalizer.
func Normalize(raw RawEmergency) Request {
	return NewNormalizer().Normalize(raw)
}

// NormalizeAll maps every element of raws, preserving order.
func (n *Normalizer) NormalizeAll(raws []RawEmergency) []Request {
	out := make([]Request, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw))
	}
	return out
}

// Normalize maps one payload. It never fails and never mutates raw.
func (n *Normalizer) Normalize(raw RawEmergency) Request {
	now := n.now()
	priority, detailsType := n.classify(raw)

	typ := raw.text("emtype", "emergency_type")
	if typ == "" {
		typ = detailsType
	}
	if typ == "" {
		typ = TypePlaceholder
	}

	return Request{
		ID:       requestID(raw),
		Time:     n.displayTime(raw, now),
		Type:     typ,
		Desc:     coalesce(raw.text("emdescription", "description", "place_description"), DescPlaceholder),
		Address:  formatAddress(raw),
		Priority: priority,
		Location: parseLocation(raw),
		Photo:    resolvePhoto(raw.text("photo_b64", "empicture")),
		User: Patient{
			Name:       patientName(raw),
			Age:        patientAge(raw, now),
			Blood:      coalesce(raw.text("bloodtype", "blood_type"), BloodPlaceholder),
			Conditions: parseConditions(raw),
		},
		OriginalData: maps.Clone(raw),
	}
}

func (n *Normalizer) now() time.Time {
	c := n.clock
	if c == nil {
		c = clock
	}
	return c.Now().In(n.location)
}

// classify derives the priority and, when details_json carries one, the
// emergency type. details_json takes precedence over numeric scores.
func (n *Normalizer) classify(raw RawEmergency) (Priority, string) {
	if v, ok := raw.lookup("details_json"); ok {
		return classifyDetails(v)
	}

	v, ok := raw.lookup("severity", "emscore")
	if !ok {
		return PriorityLow, ""
	}
	if p, ok := priorityFromLabel(v); ok {
		return p, ""
	}
	f, ok := number(v)
	if !ok {
		return PriorityLow, ""
	}
	return n.scale.Tag(f).Priority(), ""
}

func classifyDetails(v any) (Priority, string) {
	details, ok := v.(map[string]any)
	if !ok {
		s, isStr := v.(string)
		if !isStr || json.Unmarshal([]byte(s), &details) != nil {
			return PriorityMedium, TypeDetailsUnreadable
		}
	}
	priority, ok := ParsePriority(stringify(details["gravity"]))
	if !ok {
		priority = PriorityMedium
	}
	return priority, stringify(details["type"])
}

// parseLocation reads "lat,lng" from position/emposition, then a [lat,lng]
// array, then a {"lat","lng"} location object. Unparseable halves are 0.
func parseLocation(raw RawEmergency) Location {
	v, _ := raw.lookup("position", "emposition")
	switch t := v.(type) {
	case string:
		parts := strings.Split(t, ",")
		if len(parts) >= 2 {
			return Location{Lat: parseFloatOrZero(parts[0]), Lng: parseFloatOrZero(parts[1])}
		}
	case []any:
		if len(t) >= 2 {
			lat, _ := number(t[0])
			lng, _ := number(t[1])
			return Location{Lat: lat, Lng: lng}
		}
	}

	if obj, ok := raw["location"].(map[string]any); ok {
		lat, _ := number(obj["lat"])
		lng, okLng := number(obj["lng"])
		if !okLng {
			lng, _ = number(obj["lon"])
		}
		return Location{Lat: lat, Lng: lng}
	}

	if s, ok := v.(string); ok {
		return Location{Lat: parseFloatOrZero(s)}
	}
	return Location{}
}

// TextualPlace returns a free-text place from position fields that do not
// hold coordinates, e.g. "Piazza Duomo". Used for forward geocoding.
func TextualPlace(raw RawEmergency) string {
	s := raw.text("position", "emposition")
	if s == "" {
		return ""
	}
	parts := strings.Split(s, ",")
	if len(parts) >= 2 {
		if _, ok := number(parts[0]); ok {
			return ""
		}
	}
	return s
}

// resolvePhoto passes URLs and static asset paths through and wraps
// anything else as a PNG data URL.
func resolvePhoto(v string) *string {
	if v == "" {
		return nil
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:") || strings.HasPrefix(v, StaticAssetPrefix) {
		return &v
	}
	url := "data:image/png;base64," + v
	return &url
}

// patientAge uses calendar-correct subtraction from birthday, then a
// numeric age field, then unknown.
func patientAge(raw RawEmergency, now time.Time) Age {
	if birth, ok := parseDate(raw.text("birthday"), now.Location()); ok && !birth.After(now) {
		return AgeOf(ageAt(birth, now))
	}
	if f, ok := number(raw["age"]); ok && f >= 0 {
		return AgeOf(int(f))
	}
	return UnknownAge()
}

func ageAt(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// displayTime formats created_at as HH:MM, falling back to now.
func (n *Normalizer) displayTime(raw RawEmergency, now time.Time) string {
	if s := raw.text("created_at"); s != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, s, n.location); err == nil {
				return t.In(n.location).Format("15:04")
			}
		}
	}
	return now.Format("15:04")
}

// requestID builds REQ-<rawId>. Payloads without an id get a content hash
// so the same payload always maps to the same id.
func requestID(raw RawEmergency) string {
	if id := raw.text("id", "emergency_id"); id != "" {
		return RequestIDPrefix + id
	}
	// json.Marshal sorts map keys, so the digest is stable.
	data, err := json.Marshal(raw)
	if err != nil {
		data = []byte{}
	}
	sum := sha256.Sum256(data)
	return RequestIDPrefix + anonymousRequestMarker + hex.EncodeToString(sum[:6])
}

func patientName(raw RawEmergency) string {
	name := strings.TrimSpace(raw.text("name") + " " + raw.text("surname"))
	if name != "" {
		return name
	}
	if uuid := raw.text("user_uuid"); uuid != "" {
		if len(uuid) > 8 {
			uuid = uuid[:8]
		}
		return "Utente " + uuid + "..."
	}
	return AnonymousUserName
}

func formatAddress(raw RawEmergency) string {
	var parts []string
	for _, k := range []string{"address", "street_number", "city"} {
		if s := raw.text(k); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return AddressPlaceholder
	}
	return strings.Join(parts, ", ")
}

// parseConditions flattens health info into display badges. It never
// returns an empty slice.
func parseConditions(raw RawEmergency) []string {
	v, _ := raw.lookup("healthinfo", "health_info_json")
	conditions := flattenHealth(v, "")
	if len(conditions) == 0 {
		return []string{NoMedicalInfo}
	}
	return conditions
}

func flattenHealth(v any, label string) []string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, flattenHealth(t[k], k)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, flattenHealth(item, label)...)
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return flattenHealth(decoded, label)
			}
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" || emptyHealthValues[strings.ToLower(part)] {
				continue
			}
			out = append(out, withLabel(label, part))
		}
		return out
	default:
		if s := stringify(t); s != "" {
			return []string{withLabel(label, s)}
		}
		return nil
	}
}

func withLabel(label, value string) string {
	if label == "" {
		return value
	}
	return label + ": " + value
}

func coalesce(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
