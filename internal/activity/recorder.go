// Package activity writes the audit trail shown on the activity screen.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geocoder89/backoffice/internal/actorctx"
	domain "github.com/geocoder89/backoffice/internal/domain/activity"
)

type Store interface {
	Insert(ctx context.Context, e domain.Entry) error
}

// Recorder stamps entries with the actor from ctx and stores them. Failures
// are logged, never returned: the change being recorded already happened.
type Recorder struct {
	store   Store
	log     *slog.Logger
	timeout time.Duration
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log, timeout: 2 * time.Second}
}

func (r *Recorder) Record(ctx context.Context, action domain.Action, entity, entityID string, details any) {
	if r == nil || r.store == nil {
		return
	}

	e := domain.Entry{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	}

	if a, ok := actorctx.From(ctx); ok {
		id := a.UserID
		e.ActorID = &id
		e.ActorEmail = a.Email
		e.IPAddress = a.IP
	}

	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			r.log.WarnContext(ctx, "activity_details_marshal_failed", "entity", entity, "action", action, "err", err)
		} else if len(b) > 0 && b[0] == '{' {
			e.Details = b
		}
	}

	e = domain.New(e)

	// a cancelled request must still leave its trail
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Insert(writeCtx, e); err != nil {
		r.log.ErrorContext(ctx, "activity_record_failed",
			"entity", entity,
			"entity_id", entityID,
			"action", action,
			"err", err,
		)
	}
}

// RecordAs records for an explicit actor, used where the request is not yet
// authenticated (login).
func (r *Recorder) RecordAs(ctx context.Context, a actorctx.Actor, action domain.Action, entity, entityID string, details any) {
	r.Record(actorctx.With(ctx, a), action, entity, entityID, details)
}
