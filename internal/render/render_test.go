package render

import (
	"bytes"
	"testing"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(id string, p domain.Priority, at string) domain.Request {
	return domain.Request{
		ID:       id,
		Time:     at,
		Type:     "Incendio",
		Desc:     "Fumo dal secondo piano",
		Address:  domain.AddressPlaceholder,
		Priority: p,
		Location: domain.Location{Lat: 40.7745123, Lng: 14.7891267},
		User: domain.Patient{
			Name:       "Mario Rossi",
			Age:        domain.AgeOf(34),
			Blood:      domain.BloodPlaceholder,
			Conditions: []string{domain.NoMedicalInfo},
		},
	}
}

func cardIDs(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestFeed_Sort(t *testing.T) {
	reqs := []domain.Request{
		request("REQ-1", domain.PriorityLow, "09:10"),
		request("REQ-2", domain.PriorityHigh, "09:05"),
		request("REQ-3", domain.PriorityMedium, "09:20"),
		request("REQ-4", domain.PriorityHigh, "09:00"),
	}

	tests := []struct {
		name  string
		key   SortKey
		order Order
		want  []string
	}{
		{"stored order", SortNone, Desc, []string{"REQ-1", "REQ-2", "REQ-3", "REQ-4"}},
		{"priority desc keeps ties stable", SortPriority, Desc, []string{"REQ-2", "REQ-4", "REQ-3", "REQ-1"}},
		{"priority asc", SortPriority, Asc, []string{"REQ-1", "REQ-3", "REQ-2", "REQ-4"}},
		{"time desc", SortTime, Desc, []string{"REQ-3", "REQ-1", "REQ-2", "REQ-4"}},
		{"time asc", SortTime, Asc, []string{"REQ-4", "REQ-2", "REQ-1", "REQ-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Feed(reqs, FeedOptions{Sort: tt.key, Order: tt.order})
			assert.Equal(t, tt.want, cardIDs(view.Cards))
			assert.Equal(t, 4, view.Total)
			assert.Empty(t, view.Groups)
		})
	}

	assert.Equal(t, "REQ-1", reqs[0].ID, "input is not reordered")
}

func TestFeed_GroupByPriority(t *testing.T) {
	reqs := []domain.Request{
		request("REQ-1", domain.PriorityLow, "09:10"),
		request("REQ-2", domain.PriorityHigh, "09:05"),
		request("REQ-3", "", "09:20"),
		request("REQ-4", domain.PriorityHigh, "09:30"),
	}

	view := Feed(reqs, FeedOptions{Group: ByPriority(), Sort: SortTime, Order: Desc})
	require.Len(t, view.Groups, 4)

	assert.Equal(t, "high", view.Groups[0].Key)
	assert.Equal(t, "Priorità Alta", view.Groups[0].Label)
	assert.Equal(t, []string{"REQ-4", "REQ-2"}, cardIDs(view.Groups[0].Cards))
	assert.Equal(t, "medium", view.Groups[1].Key)
	assert.Empty(t, view.Groups[1].Cards)
	assert.Equal(t, []string{"REQ-1"}, cardIDs(view.Groups[2].Cards))
	assert.Equal(t, "other", view.Groups[3].Key)
	assert.Equal(t, []string{"REQ-3"}, cardIDs(view.Groups[3].Cards))
	assert.Empty(t, view.Cards)
}

func TestFeed_CustomGrouping(t *testing.T) {
	reqs := []domain.Request{
		request("REQ-1", domain.PriorityLow, "09:10"),
		request("REQ-2", domain.PriorityHigh, "10:05"),
	}
	byHour := &Grouping{
		Keys: []string{"09", "10"},
		Key:  func(r domain.Request) string { return r.Time[:2] },
	}

	view := Feed(reqs, FeedOptions{Group: byHour})
	require.Len(t, view.Groups, 2)
	assert.Equal(t, "09", view.Groups[0].Label, "key doubles as label")
	assert.Equal(t, []string{"REQ-2"}, cardIDs(view.Groups[1].Cards))
}

func TestParseSort(t *testing.T) {
	key, order, err := ParseSort("Priority", "")
	require.NoError(t, err)
	assert.Equal(t, SortPriority, key)
	assert.Equal(t, Desc, order)

	key, order, err = ParseSort("", "ASC")
	require.NoError(t, err)
	assert.Equal(t, SortNone, key)
	assert.Equal(t, Asc, order)

	_, _, err = ParseSort("severity", "asc")
	require.Error(t, err)
	_, _, err = ParseSort("time", "sideways")
	require.Error(t, err)
}

func TestNewCard(t *testing.T) {
	r := request("REQ-7", domain.PriorityHigh, "09:00")
	r.User.Blood = "0+"
	r.User.Conditions = []string{"Diabete", "Asma"}
	r.OriginalData = domain.RawEmergency{"id": float64(7)}

	card := NewCard(r, "REQ-7")

	want := Card{
		ID:          "REQ-7",
		Time:        "09:00",
		Type:        "Incendio",
		Desc:        "Fumo dal secondo piano",
		Address:     domain.AddressPlaceholder,
		Priority:    domain.PriorityHigh,
		PatientName: "Mario Rossi",
		Age:         "34",
		Conditions:  []Badge{{Label: "Diabete", Class: "warning"}, {Label: "Asma", Class: "warning"}},
		Blood:       &Badge{Label: "Gr. 0+", Class: "info"},
		GPS:         "40.77451, 14.78913",
		DetailURL:   "/detail/7",
		SelectURL:   "/dashboard?select=REQ-7",
		Selected:    true,
	}
	if diff := cmp.Diff(want, card); diff != "" {
		t.Errorf("card mismatch (-want +got):\n%s", diff)
	}
}

func TestNewCard_NoMedicalInfo(t *testing.T) {
	card := NewCard(request("REQ-1", domain.PriorityLow, "09:00"), "")

	assert.Equal(t, []Badge{{Label: NoKnownConditions, Class: "neutral"}}, card.Conditions)
	assert.Nil(t, card.Blood, "N/A blood has no badge")
	assert.False(t, card.Selected)
}

func TestConditionBadges_Empty(t *testing.T) {
	assert.Equal(t, []Badge{{Label: NoKnownConditions, Class: "neutral"}}, ConditionBadges(nil))
}

func TestMarkers(t *testing.T) {
	reqs := []domain.Request{
		request("REQ-H", domain.PriorityHigh, "09:00"),
		request("REQ-M", domain.PriorityMedium, "09:00"),
		request("REQ-L", domain.PriorityLow, "09:00"),
		request("REQ-U", "", "09:00"),
	}

	fc := Markers(reqs)
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 4)

	first := fc.Features[0]
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, [2]float64{14.7891267, 40.7745123}, first.Geometry.Coordinates, "lng first")
	assert.Equal(t, "Incendio", first.Properties.Tooltip)
	assert.Equal(t, "/dashboard?select=REQ-H", first.Properties.SelectURL)

	var colors []string
	var radii []int
	for _, f := range fc.Features {
		colors = append(colors, f.Properties.Color)
		radii = append(radii, f.Properties.Radius)
	}
	assert.Equal(t, []string{"red", "orange", "green", "blue"}, colors)
	assert.Equal(t, []int{12, 8, 8, 8}, radii)
}

func TestMarkers_Empty(t *testing.T) {
	fc := Markers(nil)
	assert.NotNil(t, fc.Features)
	assert.Empty(t, fc.Features)
}

func TestDeepLinkID(t *testing.T) {
	tests := []struct {
		name string
		req  domain.Request
		want string
	}{
		{"numeric raw id", domain.Request{ID: "REQ-12", OriginalData: domain.RawEmergency{"id": float64(12)}}, "12"},
		{"string raw id", domain.Request{ID: "REQ-ab", OriginalData: domain.RawEmergency{"id": "ab"}}, "ab"},
		{"no raw id", domain.Request{ID: "REQ-99"}, "99"},
		{"blank raw id", domain.Request{ID: "REQ-5", OriginalData: domain.RawEmergency{"id": " "}}, "5"},
		{"anonymous", domain.Request{ID: "REQ-anon-0123456789ab"}, "anon-0123456789ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeepLinkID(tt.req))
		})
	}
}

func TestDetail(t *testing.T) {
	r := request("REQ-3", domain.PriorityMedium, "11:45")
	photo := "data:image/jpeg;base64,/9j/4AAQ"
	r.Photo = &photo

	v := Detail(r)

	assert.Empty(t, v.Address, "placeholder address is hidden")
	assert.Equal(t, "40.774512", v.Lat)
	assert.Equal(t, "14.789127", v.Lng)
	assert.Equal(t, "MEDIUM PRIORITY", v.PriorityLabel)
	assert.Equal(t, "#f97316", v.PriorityColor)
	assert.Equal(t, "/api/requests/REQ-3/contact", v.ContactURL)
	assert.Equal(t, "/api/requests/REQ-3/dispatch", v.DispatchURL)
	assert.Equal(t, "/detail/3", v.DetailURL)
	assert.Equal(t, photo, v.Photo)
	assert.False(t, v.HasBlood)

	r.Address = "Via Roma 1, Salerno"
	assert.Equal(t, "Via Roma 1, Salerno", Detail(r).Address)
}

func TestLegal(t *testing.T) {
	titles := map[string]string{
		"it": "Regolamento Generale sulla Protezione dei Dati di RescueCom",
		"en": "Extended Personal Data Processing Notice",
		"es": "Aviso Extendido de Tratamiento de Datos Personales",
		"fr": "Avis Étendu sur le Traitement des Données Personnelles",
		"de": "Erweiterte Datenschutzerklärung",
	}
	for lang, title := range titles {
		t.Run(lang, func(t *testing.T) {
			v := Legal(lang)
			assert.Equal(t, lang, v.Lang)
			assert.Equal(t, title, v.Title)
			assert.Len(t, v.Sections, 7)
			assert.NotEmpty(t, v.Intro)
			assert.Equal(t, Languages, v.Languages)
		})
	}
}

func TestLegal_FallsBackToEnglish(t *testing.T) {
	for _, lang := range []string{"", "pt", "english"} {
		assert.Equal(t, "en", Legal(lang).Lang, "lang %q", lang)
	}
	assert.Equal(t, "de", Legal(" DE ").Lang)
	assert.Equal(t, "Notice pursuant to Regulation (EU) 2016/679 (GDPR)", Legal("xx").Subtitle)
}

func TestLoadLegal_MissingLanguage(t *testing.T) {
	_, err := loadLegal([]byte("en:\n  title: Notice\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"it"`)

	_, err = loadLegal([]byte("en: [unterminated"))
	require.Error(t, err)
}

func TestPages(t *testing.T) {
	pages, err := NewPages()
	require.NoError(t, err)

	hostile := request("REQ-1", domain.PriorityHigh, "09:00")
	hostile.Desc = "<script>alert(1)</script>"
	photo := "data:image/png;base64,iVBORw0KGgo="
	hostile.Photo = &photo
	detail := Detail(hostile)

	t.Run("dashboard", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, pages.Dashboard(&buf, DashboardPage{
			Feed:     Feed([]domain.Request{hostile}, FeedOptions{}),
			Selected: &detail,
			Order:    Desc,
		}))
		out := buf.String()
		assert.Contains(t, out, "card-REQ-1")
		assert.Contains(t, out, "&lt;script&gt;")
		assert.NotContains(t, out, "<script>alert")
		assert.Contains(t, out, `src="data:image/png;base64,iVBORw0KGgo="`)
		assert.Contains(t, out, "/api/requests/REQ-1/dispatch")
	})

	t.Run("grouped dashboard", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, pages.Dashboard(&buf, DashboardPage{
			Feed:    Feed([]domain.Request{hostile}, FeedOptions{Group: ByPriority()}),
			Grouped: true,
		}))
		assert.Contains(t, buf.String(), "Priorità Alta (1)")
		assert.Contains(t, buf.String(), "Seleziona una richiesta")
	})

	t.Run("detail", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, pages.Detail(&buf, DetailPage{Detail: detail}))
		assert.Contains(t, buf.String(), "HIGH PRIORITY")
	})

	t.Run("legal", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, pages.Legal(&buf, Legal("fr")))
		out := buf.String()
		assert.Contains(t, out, `<html lang="fr">`)
		assert.Contains(t, out, "Avis conforme au Règlement (UE) 2016/679 (RGPD)")
		assert.Contains(t, out, "<strong>", "section bodies are trusted markup")
	})

	t.Run("not found", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, pages.NotFound(&buf, Missing("REQ-404")))
		assert.Contains(t, buf.String(), "Richiesta non trovata: REQ-404")
	})
}

func TestPhotoURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,AAA", string(photoURL("data:image/jpeg;base64,AAA")))
	assert.Equal(t, "https://cdn.example.org/p.jpg", string(photoURL("https://cdn.example.org/p.jpg")))
	assert.Equal(t, "/static/img/dummy_accident.png", string(photoURL("/static/img/dummy_accident.png")))
	assert.Empty(t, string(photoURL("javascript:alert(1)")))
	assert.Empty(t, string(photoURL("//evil.example.org/p.jpg")))
	assert.Empty(t, string(photoURL("/9j/4AAQSkZJRgABAQAAAQABAAD")))
}
