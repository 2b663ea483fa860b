package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
)

// ActionPublisher delivers operator actions downstream.
type ActionPublisher interface {
	Publish(ctx context.Context, action domain.Action) error
}

// Actions handles contact and dispatch decisions from the detail view.
type Actions struct {
	store     *store.Store
	publisher ActionPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewActions creates an action handler. A nil publisher only logs actions.
func NewActions(st *store.Store, publisher ActionPublisher, logger *slog.Logger, metrics *observability.Metrics) *Actions {
	return &Actions{store: st, publisher: publisher, logger: logger, metrics: metrics}
}

// Perform records kind for the request with the given id. It returns
// store.ErrNotFound for unknown ids.
func (a *Actions) Perform(ctx context.Context, id string, kind domain.ActionKind) (domain.Action, error) {
	req, err := a.store.Get(id)
	if err != nil {
		return domain.Action{}, err
	}
	action := domain.NewAction(req, kind)

	if a.publisher == nil {
		a.logger.Info("operator action", "request_id", id, "action", kind, "priority", req.Priority)
		a.metrics.Actions.WithLabelValues(string(kind), "logged").Inc()
		return action, nil
	}

	if err := a.publisher.Publish(ctx, action); err != nil {
		a.logger.Error("publish action failed", "request_id", id, "action", kind, "error", err)
		a.metrics.Actions.WithLabelValues(string(kind), "error").Inc()
		return action, err
	}
	a.metrics.Actions.WithLabelValues(string(kind), "published").Inc()
	return action, nil
}
