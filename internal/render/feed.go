// Package render projects canonical requests into view structures: feed
// cards, map markers, the detail panel and the legal notice. Every function
// is pure. Binding the views to HTML or JSON is left to the HTTP adapter.
package render

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
)

// NoKnownConditions replaces the condition badges when a patient has no
// medical information on file.
const NoKnownConditions = "Nessuna patologia nota"

// SortKey selects the field a flat feed is ordered by.
type SortKey string

const (
	SortNone     SortKey = ""
	SortTime     SortKey = "time"
	SortPriority SortKey = "priority"
)

// Order is the direction of a sort.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ParseSort validates a sort key and order taken from a query string.
// Empty values select the stored order and descending direction.
func ParseSort(key, order string) (SortKey, Order, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(key)))
	switch k {
	case SortNone, SortTime, SortPriority:
	default:
		return "", "", fmt.Errorf("unknown sort key %q", key)
	}
	o := Order(strings.ToLower(strings.TrimSpace(order)))
	switch o {
	case "":
		o = Desc
	case Asc, Desc:
	default:
		return "", "", fmt.Errorf("unknown sort order %q", order)
	}
	return k, o, nil
}

// Grouping buckets requests by a caller-supplied predicate. Keys fixes the
// bucket order; requests whose key is not listed land in a trailing bucket.
type Grouping struct {
	Keys   []string
	Labels map[string]string
	Key    func(domain.Request) string
}

// ByPriority buckets requests high, medium, low.
func ByPriority() *Grouping {
	return &Grouping{
		Keys: []string{string(domain.PriorityHigh), string(domain.PriorityMedium), string(domain.PriorityLow)},
		Labels: map[string]string{
			string(domain.PriorityHigh):   "Priorità Alta",
			string(domain.PriorityMedium): "Priorità Media",
			string(domain.PriorityLow):    "Priorità Bassa",
		},
		Key: func(r domain.Request) string { return string(r.Priority) },
	}
}

// FeedOptions controls Feed. A non-nil Group takes precedence over Sort;
// within a group the Sort still applies.
type FeedOptions struct {
	Sort     SortKey
	Order    Order
	Group    *Grouping
	Selected string
}

// Badge is a small labelled chip on a card.
type Badge struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

// Card is the feed projection of one request.
type Card struct {
	ID          string          `json:"id"`
	Time        string          `json:"time"`
	Type        string          `json:"type"`
	Desc        string          `json:"desc"`
	Address     string          `json:"address"`
	Priority    domain.Priority `json:"priority"`
	PatientName string          `json:"patient_name"`
	Age         string          `json:"age"`
	Conditions  []Badge         `json:"conditions"`
	Blood       *Badge          `json:"blood,omitempty"`
	GPS         string          `json:"gps"`
	DetailURL   string          `json:"detail_url"`
	SelectURL   string          `json:"select_url"`
	Selected    bool            `json:"selected"`
}

// Group is one bucket of a grouped feed.
type Group struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Cards []Card `json:"cards"`
}

// FeedView is either a flat card list or a list of groups.
type FeedView struct {
	Cards  []Card  `json:"cards,omitempty"`
	Groups []Group `json:"groups,omitempty"`
	Total  int     `json:"total"`
}

// Feed renders reqs as cards. The input slice is never reordered.
func Feed(reqs []domain.Request, opts FeedOptions) FeedView {
	sorted := Sort(reqs, opts.Sort, opts.Order)
	view := FeedView{Total: len(sorted)}

	if opts.Group == nil {
		view.Cards = make([]Card, 0, len(sorted))
		for _, r := range sorted {
			view.Cards = append(view.Cards, NewCard(r, opts.Selected))
		}
		return view
	}

	buckets := make(map[string][]Card, len(opts.Group.Keys))
	var other []Card
	for _, r := range sorted {
		key := opts.Group.Key(r)
		if !slices.Contains(opts.Group.Keys, key) {
			other = append(other, NewCard(r, opts.Selected))
			continue
		}
		buckets[key] = append(buckets[key], NewCard(r, opts.Selected))
	}
	for _, key := range opts.Group.Keys {
		label := opts.Group.Labels[key]
		if label == "" {
			label = key
		}
		view.Groups = append(view.Groups, Group{Key: key, Label: label, Cards: buckets[key]})
	}
	if len(other) > 0 {
		view.Groups = append(view.Groups, Group{Key: "other", Label: "Altro", Cards: other})
	}
	return view
}

// Sort returns a sorted copy of reqs. Ties keep their stored order.
func Sort(reqs []domain.Request, key SortKey, order Order) []domain.Request {
	out := slices.Clone(reqs)
	var cmp func(a, b domain.Request) int
	switch key {
	case SortTime:
		cmp = func(a, b domain.Request) int { return strings.Compare(a.Time, b.Time) }
	case SortPriority:
		cmp = func(a, b domain.Request) int { return a.Priority.Rank() - b.Priority.Rank() }
	default:
		return out
	}
	if order != Asc {
		asc := cmp
		cmp = func(a, b domain.Request) int { return asc(b, a) }
	}
	slices.SortStableFunc(out, cmp)
	return out
}

// NewCard builds the card for r. selected is the id of the request shown in
// the detail panel.
func NewCard(r domain.Request, selected string) Card {
	return Card{
		ID:          r.ID,
		Time:        r.Time,
		Type:        r.Type,
		Desc:        r.Desc,
		Address:     r.Address,
		Priority:    r.Priority,
		PatientName: r.User.Name,
		Age:         r.User.Age.String(),
		Conditions:  ConditionBadges(r.User.Conditions),
		Blood:       bloodBadge(r.User.Blood),
		GPS:         gpsText(r.Location, 5),
		DetailURL:   DetailURL(r),
		SelectURL:   SelectURL(r.ID),
		Selected:    selected != "" && selected == r.ID,
	}
}

// ConditionBadges returns one warning badge per condition, or a single
// neutral badge when nothing is known.
func ConditionBadges(conditions []string) []Badge {
	if len(conditions) == 0 || conditions[0] == domain.NoMedicalInfo {
		return []Badge{{Label: NoKnownConditions, Class: "neutral"}}
	}
	out := make([]Badge, len(conditions))
	for i, c := range conditions {
		out[i] = Badge{Label: c, Class: "warning"}
	}
	return out
}

func bloodBadge(blood string) *Badge {
	if blood == "" || blood == domain.BloodPlaceholder {
		return nil
	}
	return &Badge{Label: "Gr. " + blood, Class: "info"}
}

func gpsText(loc domain.Location, decimals int) string {
	return strconv.FormatFloat(loc.Lat, 'f', decimals, 64) + ", " + strconv.FormatFloat(loc.Lng, 'f', decimals, 64)
}

// SelectURL is the dashboard link that opens id in the detail panel.
func SelectURL(id string) string {
	return "/dashboard?select=" + url.QueryEscape(id)
}
