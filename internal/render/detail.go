package render

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
)

// DeepLinkID returns the id used in /detail/<id> links: the source's raw id
// when it carried one, otherwise the canonical id without its REQ- prefix.
func DeepLinkID(r domain.Request) string {
	if raw, ok := r.OriginalData["id"]; ok {
		if id := rawID(raw); id != "" {
			return id
		}
	}
	return strings.TrimPrefix(r.ID, domain.RequestIDPrefix)
}

func rawID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// DetailURL is the full-detail page of r.
func DetailURL(r domain.Request) string {
	return "/detail/" + url.PathEscape(DeepLinkID(r))
}

// ActionURL is the endpoint that performs kind on the request with id.
func ActionURL(id string, kind domain.ActionKind) string {
	return "/api/requests/" + url.PathEscape(id) + "/" + string(kind)
}

// DetailView is the side-panel projection of one request.
type DetailView struct {
	ID            string          `json:"id"`
	Time          string          `json:"time"`
	Type          string          `json:"type"`
	Desc          string          `json:"desc"`
	Priority      domain.Priority `json:"priority"`
	PriorityLabel string          `json:"priority_label"`
	PriorityColor string          `json:"priority_color"`
	Address       string          `json:"address,omitempty"`
	Photo         string          `json:"photo,omitempty"`
	PatientName   string          `json:"patient_name"`
	Age           string          `json:"age"`
	Blood         string          `json:"blood"`
	HasBlood      bool            `json:"has_blood"`
	Conditions    []Badge         `json:"conditions"`
	Lat           string          `json:"lat"`
	Lng           string          `json:"lng"`
	ContactURL    string          `json:"contact_url"`
	DispatchURL   string          `json:"dispatch_url"`
	DetailURL     string          `json:"detail_url"`
	Geo           string          `json:"geo_source,omitempty"`
}

// Detail renders r for the detail panel.
func Detail(r domain.Request) DetailView {
	v := DetailView{
		ID:            r.ID,
		Time:          r.Time,
		Type:          r.Type,
		Desc:          r.Desc,
		Priority:      r.Priority,
		PriorityLabel: strings.ToUpper(string(r.Priority)) + " PRIORITY",
		PriorityColor: accentColor(r.Priority),
		PatientName:   r.User.Name,
		Age:           r.User.Age.String(),
		Blood:         r.User.Blood,
		HasBlood:      r.User.Blood != "" && r.User.Blood != domain.BloodPlaceholder,
		Conditions:    ConditionBadges(r.User.Conditions),
		Lat:           strconv.FormatFloat(r.Location.Lat, 'f', 6, 64),
		Lng:           strconv.FormatFloat(r.Location.Lng, 'f', 6, 64),
		ContactURL:    ActionURL(r.ID, domain.ActionContact),
		DispatchURL:   ActionURL(r.ID, domain.ActionDispatch),
		DetailURL:     DetailURL(r),
		Geo:           r.Geo.Source,
	}
	if r.Address != "" && r.Address != domain.AddressPlaceholder {
		v.Address = r.Address
	}
	if r.Photo != nil {
		v.Photo = *r.Photo
	}
	return v
}

func accentColor(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return "#ef4444"
	case domain.PriorityMedium:
		return "#f97316"
	default:
		return "#22c55e"
	}
}

// NotFound is the view for an id that matches no stored request.
type NotFound struct {
	ID      string `json:"id"`
	Message string `json:"error"`
}

// Missing renders the not-found view for id.
func Missing(id string) NotFound {
	return NotFound{ID: id, Message: "Richiesta non trovata: " + id}
}
