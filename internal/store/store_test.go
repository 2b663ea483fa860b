package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySnapshots struct {
	mu      sync.Mutex
	slots   map[string][]byte
	writes  int
	saveErr error
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{slots: map[string][]byte{}}
}

func (m *memorySnapshots) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.slots[key] = append([]byte(nil), data...)
	return nil
}

func (m *memorySnapshots) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return data, nil
}

func (m *memorySnapshots) decode(t *testing.T) []domain.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Request
	require.NoError(t, json.Unmarshal(m.slots[SnapshotKey], &out))
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func req(id string, p domain.Priority, at string) domain.Request {
	return domain.Request{ID: id, Priority: p, Time: at, User: domain.Patient{Conditions: []string{domain.NoMedicalInfo}}}
}

func ids(reqs []domain.Request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}

func TestStore_PrependThenReplace(t *testing.T) {
	ctx := context.Background()
	snaps := newMemorySnapshots()
	s := New(snaps, testLogger(), observability.NewMetricsForTesting())

	s.Prepend(ctx, req("REQ-A", domain.PriorityLow, "10:00"))
	s.Prepend(ctx, req("REQ-B", domain.PriorityHigh, "10:01"))
	assert.Equal(t, []string{"REQ-B", "REQ-A"}, ids(s.All()))

	s.ReplaceAll(ctx, []domain.Request{req("REQ-C", domain.PriorityMedium, "11:00")})
	assert.Equal(t, []string{"REQ-C"}, ids(s.All()))
	assert.Equal(t, 1, s.Len())
}

func TestStore_SnapshotAfterEveryMutation(t *testing.T) {
	ctx := context.Background()
	snaps := newMemorySnapshots()
	metrics := observability.NewMetricsForTesting()
	s := New(snaps, testLogger(), metrics)

	s.Prepend(ctx, req("REQ-A", domain.PriorityLow, "10:00"))
	assert.Equal(t, []string{"REQ-A"}, ids(snaps.decode(t)))

	s.Prepend(ctx, req("REQ-B", domain.PriorityLow, "10:00"))
	assert.Equal(t, []string{"REQ-B", "REQ-A"}, ids(snaps.decode(t)))

	s.ReplaceAll(ctx, nil)
	assert.Empty(t, snaps.decode(t))

	assert.Equal(t, 3, snaps.writes)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("success")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.Records), 0)
}

func TestStore_SnapshotFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	snaps := newMemorySnapshots()
	snaps.saveErr = errors.New("quota exceeded")
	metrics := observability.NewMetricsForTesting()
	s := New(snaps, testLogger(), metrics)

	s.Prepend(ctx, req("REQ-A", domain.PriorityLow, "10:00"))

	assert.Equal(t, []string{"REQ-A"}, ids(s.All()), "in-memory state is kept")
	assert.Equal(t, 1, snaps.writes, "no retry")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SnapshotWrites.WithLabelValues("error")), 0)
}

// gatedSnapshots blocks the first Save until release is closed.
type gatedSnapshots struct {
	*memorySnapshots
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSnapshots) Save(ctx context.Context, key string, data []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.memorySnapshots.Save(ctx, key, data)
}

func TestStore_ConcurrentMutationsSnapshotInOrder(t *testing.T) {
	ctx := context.Background()
	snaps := &gatedSnapshots{
		memorySnapshots: newMemorySnapshots(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	s := New(snaps, testLogger(), observability.NewMetricsForTesting())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Prepend(ctx, req("REQ-A", domain.PriorityLow, "10:00"))
	}()
	<-snaps.entered

	go func() {
		defer wg.Done()
		s.Prepend(ctx, req("REQ-B", domain.PriorityLow, "10:01"))
	}()
	require.Eventually(t, func() bool { return s.Len() == 2 }, time.Second, 5*time.Millisecond)

	close(snaps.release)
	wg.Wait()

	assert.Equal(t, []string{"REQ-B", "REQ-A"}, ids(s.All()))
	assert.Equal(t, []string{"REQ-B", "REQ-A"}, ids(snaps.decode(t)), "slot matches memory")
}

func TestStore_StaleSnapshotSkipped(t *testing.T) {
	ctx := context.Background()
	snaps := newMemorySnapshots()
	s := New(snaps, testLogger(), observability.NewMetricsForTesting())

	newer := []domain.Request{req("REQ-B", domain.PriorityLow, "10:01"), req("REQ-A", domain.PriorityLow, "10:00")}
	older := []domain.Request{req("REQ-A", domain.PriorityLow, "10:00")}

	s.snapshot(ctx, 2, newer)
	s.snapshot(ctx, 1, older)

	assert.Equal(t, []string{"REQ-B", "REQ-A"}, ids(snaps.decode(t)))
	assert.Equal(t, 1, snaps.writes)
}

func TestStore_AllReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New(nil, testLogger(), nil)
	s.ReplaceAll(ctx, []domain.Request{
		req("REQ-1", domain.PriorityLow, "09:00"),
		req("REQ-2", domain.PriorityHigh, "08:00"),
	})

	view := s.All()
	sort.Slice(view, func(i, j int) bool { return view[i].Priority.Rank() > view[j].Priority.Rank() })
	view[0].ID = "mutated"

	assert.Equal(t, []string{"REQ-1", "REQ-2"}, ids(s.All()))
}

func TestStore_ReplaceAllCopiesInput(t *testing.T) {
	records := []domain.Request{req("REQ-1", domain.PriorityLow, "09:00")}
	s := New(nil, testLogger(), nil)
	s.ReplaceAll(context.Background(), records)

	records[0].ID = "changed"

	got, err := s.Get("REQ-1")
	require.NoError(t, err)
	assert.Equal(t, "REQ-1", got.ID)
}

func TestStore_GetAndSelect(t *testing.T) {
	s := New(nil, testLogger(), nil)
	s.ReplaceAll(context.Background(), []domain.Request{req("REQ-1", domain.PriorityLow, "09:00")})

	_, err := s.Get("REQ-404")
	require.ErrorIs(t, err, ErrNotFound)

	_, ok := s.Selected()
	assert.False(t, ok)

	require.ErrorIs(t, s.Select("REQ-404"), ErrNotFound)
	require.NoError(t, s.Select("REQ-1"))

	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "REQ-1", sel.ID)

	// A refresh that drops the selected record clears the selection view.
	s.ReplaceAll(context.Background(), nil)
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestStore_Restore(t *testing.T) {
	ctx := context.Background()
	snaps := newMemorySnapshots()

	first := New(snaps, testLogger(), nil)
	first.ReplaceAll(ctx, []domain.Request{
		req("REQ-1", domain.PriorityHigh, "09:00"),
		req("REQ-2", domain.PriorityLow, "09:05"),
	})

	second := New(snaps, testLogger(), nil)
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"REQ-1", "REQ-2"}, ids(second.All()))
	assert.Equal(t, 1, snaps.writes, "restore does not rewrite the slot")
}

func TestStore_RestoreEmptyOrDisabled(t *testing.T) {
	ctx := context.Background()

	n, err := New(newMemorySnapshots(), testLogger(), nil).Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = New(nil, testLogger(), nil).Restore(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_RestoreCorruptSlot(t *testing.T) {
	snaps := newMemorySnapshots()
	snaps.slots[SnapshotKey] = []byte("{not an array")

	_, err := New(snaps, testLogger(), nil).Restore(context.Background())
	require.Error(t, err)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New(newMemorySnapshots(), testLogger(), observability.NewMetricsForTesting())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Prepend(ctx, req("REQ-P", domain.PriorityHigh, "10:00"))
		}()
		go func() {
			defer wg.Done()
			_ = s.All()
			_, _ = s.Selected()
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, s.Len())
}
