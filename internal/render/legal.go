package render

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/yaml.v3"
)

// Languages lists the supported legal notice languages in picker order.
var Languages = []string{"it", "en", "es", "fr", "de"}

// DefaultLanguage is used for absent or unsupported language codes.
const DefaultLanguage = "en"

//go:embed legal.yaml
var legalYAML []byte

var legalCopy = mustLoadLegal(legalYAML)

type legalEntry struct {
	Picker   string   `yaml:"picker"`
	Title    string   `yaml:"title"`
	Subtitle string   `yaml:"subtitle"`
	Updated  string   `yaml:"updated"`
	Intro    []string `yaml:"intro"`
	Document struct {
		Href  string `yaml:"href"`
		Label string `yaml:"label"`
	} `yaml:"document"`
	Sections []struct {
		Title string `yaml:"title"`
		Body  string `yaml:"body"`
	} `yaml:"sections"`
}

func loadLegal(data []byte) (map[string]legalEntry, error) {
	var table map[string]legalEntry
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode legal copy: %w", err)
	}
	for _, lang := range Languages {
		if _, ok := table[lang]; !ok {
			return nil, fmt.Errorf("legal copy missing language %q", lang)
		}
	}
	return table, nil
}

func mustLoadLegal(data []byte) map[string]legalEntry {
	table, err := loadLegal(data)
	if err != nil {
		panic(err)
	}
	return table
}

// LegalSection is one collapsible block of the notice.
type LegalSection struct {
	Title string
	Body  template.HTML
}

// LegalView is the localized legal notice.
type LegalView struct {
	Lang          string
	Languages     []string
	Picker        string
	Title         string
	Subtitle      string
	Updated       string
	Intro         []template.HTML
	DocumentHref  string
	DocumentLabel string
	Sections      []LegalSection
}

// ResolveLanguage normalizes lang to a supported code, falling back to en.
func ResolveLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := legalCopy[lang]; ok {
		return lang
	}
	return DefaultLanguage
}

// Legal renders the notice in lang.
func Legal(lang string) LegalView {
	lang = ResolveLanguage(lang)
	e := legalCopy[lang]

	v := LegalView{
		Lang:          lang,
		Languages:     Languages,
		Picker:        e.Picker,
		Title:         e.Title,
		Subtitle:      e.Subtitle,
		Updated:       e.Updated,
		DocumentHref:  e.Document.Href,
		DocumentLabel: e.Document.Label,
	}
	for _, p := range e.Intro {
		// Embedded copy is trusted markup.
		v.Intro = append(v.Intro, template.HTML(p)) //nolint:gosec
	}
	for _, s := range e.Sections {
		v.Sections = append(v.Sections, LegalSection{Title: s.Title, Body: template.HTML(s.Body)}) //nolint:gosec
	}
	return v
}
