// Command validate checks a raw payload fixture against the normalizer's
// guarantees: every record maps to a complete canonical request, mapping is
// stable across runs, and (optionally) the output matches a canonical
// fixture written by simulate -preview.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -payloads internal/adapter/demo/requests.json \
//	  -expected out/canonical.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
)

// fixtureTime matches simulate -preview so canonical fixtures compare equal.
var fixtureTime = time.Date(2025, time.December, 28, 9, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	payloads := flag.String("payloads", "", "JSON array of raw payloads")
	expected := flag.String("expected", "", "optional canonical fixture to compare against")
	flag.Parse()

	if *payloads == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*payloads, *expected); code != 0 {
		os.Exit(code)
	}
}

func run(payloadsPath, expectedPath string) int {
	fmt.Println("=== RescueCom Normalization Validation ===")
	fmt.Println()

	raws, err := loadJSON[domain.RawEmergency](payloadsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load payloads: %v\n", err)
		return 1
	}

	normalizer := newNormalizer(fixtureTime)
	reqs := normalizer.NormalizeAll(raws)

	phases := []*phase{
		validatePayloadShape(raws),
		validateTotality(reqs),
		validateUniqueIDs(reqs),
		validateIdempotence(raws, reqs),
	}

	if expectedPath != "" {
		want, err := loadJSON[domain.Request](expectedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load expected fixture: %v\n", err)
			return 1
		}
		phases = append(phases, validateAgainstFixture(reqs, want))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d payloads, %d canonical\n", len(raws), len(reqs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func newNormalizer(at time.Time) *domain.Normalizer {
	return domain.NewNormalizer(
		domain.WithClock(clockwork.NewFakeClockAt(at)),
		domain.WithLocation(time.UTC),
	)
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Phases ──

func validatePayloadShape(raws []domain.RawEmergency) *phase {
	p := &phase{name: "Payload shape"}
	for i, raw := range raws {
		if raw == nil {
			p.errorf("payload %d: not a JSON object", i)
			continue
		}
		if _, ok := raw["id"]; !ok {
			if _, ok := raw["emergency_id"]; !ok {
				p.errorf("payload %d: no id, will get an anonymous content id", i)
			}
		}
	}
	return p
}

func validateTotality(reqs []domain.Request) *phase {
	p := &phase{name: "Canonical records complete"}
	for i, r := range reqs {
		pf := func(format string, args ...any) {
			p.errorf("record %d (%s): %s", i, r.ID, fmt.Sprintf(format, args...))
		}
		if !strings.HasPrefix(r.ID, domain.RequestIDPrefix) {
			pf("id missing %s prefix", domain.RequestIDPrefix)
		}
		if _, ok := domain.ParsePriority(string(r.Priority)); !ok {
			pf("priority %q not in low/medium/high", r.Priority)
		}
		for field, v := range map[string]string{
			"time": r.Time, "type": r.Type, "desc": r.Desc,
			"address": r.Address, "user.name": r.User.Name, "user.blood": r.User.Blood,
		} {
			if v == "" {
				pf("%s is empty", field)
			}
		}
		if len(r.User.Conditions) == 0 {
			pf("conditions is empty")
		}
		if years, ok := r.User.Age.Years(); ok && years < 0 {
			pf("negative age %d", years)
		}
		if math.IsNaN(r.Location.Lat) || math.IsNaN(r.Location.Lng) {
			pf("location is NaN")
		}
		if r.Location.Lat < -90 || r.Location.Lat > 90 || r.Location.Lng < -180 || r.Location.Lng > 180 {
			pf("location %v out of range", r.Location)
		}
	}
	return p
}

func validateUniqueIDs(reqs []domain.Request) *phase {
	p := &phase{name: "Canonical ids unique"}
	seen := make(map[string]int, len(reqs))
	for i, r := range reqs {
		if prev, ok := seen[r.ID]; ok {
			p.errorf("records %d and %d share id %s", prev, i, r.ID)
			continue
		}
		seen[r.ID] = i
	}
	return p
}

// validateIdempotence normalizes again an hour later. Only the display
// time may differ.
func validateIdempotence(raws []domain.RawEmergency, first []domain.Request) *phase {
	p := &phase{name: "Normalization stable (modulo time)"}
	again := newNormalizer(fixtureTime.Add(time.Hour)).NormalizeAll(raws)
	for i := range first {
		if diff := cmp.Diff(first[i], again[i], canonicalOpts...); diff != "" {
			p.errorf("record %d (%s) changed between runs:\n%s", i, first[i].ID, diff)
		}
	}
	return p
}

func validateAgainstFixture(got, want []domain.Request) *phase {
	p := &phase{name: "Matches canonical fixture"}
	if len(got) != len(want) {
		p.errorf("count mismatch: normalized %d, fixture %d", len(got), len(want))
		return p
	}
	// Round-trip through JSON so both sides hold the same dynamic types.
	roundTripped, err := roundTrip(got)
	if err != nil {
		p.errorf("encode normalized records: %v", err)
		return p
	}
	for i := range want {
		if diff := cmp.Diff(want[i], roundTripped[i], cmp.AllowUnexported(domain.Age{})); diff != "" {
			p.errorf("record %d (%s) differs (-fixture +normalized):\n%s", i, want[i].ID, diff)
		}
	}
	return p
}

var canonicalOpts = []cmp.Option{
	cmp.AllowUnexported(domain.Age{}),
	cmpopts.IgnoreFields(domain.Request{}, "Time"),
}

func roundTrip(reqs []domain.Request) ([]domain.Request, error) {
	data, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}
	var out []domain.Request
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
