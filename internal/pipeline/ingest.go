package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
)

// Push sources, used as metric labels.
const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// ErrNotObject is returned when a pushed payload is not a JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Ingestor turns raw payloads into canonical requests and installs them in
// the store: normalize, enrich, then mutate.
type Ingestor struct {
	normalizer *domain.Normalizer
	geocoder   domain.Geocoder
	store      *store.Store
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewIngestor creates an Ingestor. Pass a nil geocoder to disable
// geocoding enrichment.
func NewIngestor(normalizer *domain.Normalizer, geocoder domain.Geocoder, st *store.Store, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		normalizer: normalizer,
		geocoder:   geocoder,
		store:      st,
		logger:     logger,
		metrics:    metrics,
	}
}

// Refresh replaces the whole store with the normalized raws, preserving
// their order.
func (i *Ingestor) Refresh(ctx context.Context, raws []domain.RawEmergency) []domain.Request {
	reqs := i.normalizer.NormalizeAll(raws)
	for idx := range reqs {
		reqs[idx] = domain.EnrichWithGeocoding(ctx, reqs[idx], i.geocoder, i.logger)
	}
	i.store.ReplaceAll(ctx, reqs)
	return reqs
}

// Push prepends one record and selects it when its priority is high.
func (i *Ingestor) Push(ctx context.Context, raw domain.RawEmergency, source string) domain.Request {
	req := i.normalizer.Normalize(raw)
	req = domain.EnrichWithGeocoding(ctx, req, i.geocoder, i.logger)
	i.store.Prepend(ctx, req)

	if req.Priority == domain.PriorityHigh {
		if err := i.store.Select(req.ID); err != nil {
			i.logger.Warn("auto-select failed", "request_id", req.ID, "error", err)
		}
	}

	i.metrics.Pushes.WithLabelValues(source, "accepted").Inc()
	i.logger.Info("request pushed",
		"request_id", req.ID,
		"priority", req.Priority,
		"source", source,
	)
	return req
}

// PushJSON decodes a single JSON object and pushes it.
func (i *Ingestor) PushJSON(ctx context.Context, payload []byte, source string) (domain.Request, error) {
	raw, err := DecodeObject(payload)
	if err != nil {
		i.metrics.Pushes.WithLabelValues(source, "rejected").Inc()
		return domain.Request{}, err
	}
	return i.Push(ctx, raw, source), nil
}

// DecodeObject parses payload as a single JSON object.
func DecodeObject(payload []byte) (domain.RawEmergency, error) {
	var raw domain.RawEmergency
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotObject, err)
	}
	if raw == nil {
		return nil, ErrNotObject
	}
	return raw, nil
}
