// Package audit records administrative actions. Persistence is best-effort:
// a failed write is logged and never reaches the caller.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/obs"
)

// Action tags.
const (
	ActionCreateUser          = "CREATE_USER"
	ActionUpdateUser          = "UPDATE_USER"
	ActionDeleteUser          = "DELETE_USER"
	ActionCreateTeam          = "CREATE_TEAM"
	ActionUpdateTeam          = "UPDATE_TEAM"
	ActionDeleteTeam          = "DELETE_TEAM"
	ActionAdminMessageCreated = "ADMIN_MESSAGE_CREATED"
)

var tracer = otel.Tracer("ayrene.com/backoffice/internal/audit")

// Entry is an action to record.
type Entry struct {
	Action   string
	ActorID  string
	TargetID string
	Details  string
	Metadata map[string]any
}

// Recorder writes entries to an AuditStore on background goroutines.
type Recorder struct {
	store auth.AuditStore
	now   func() time.Time
	wg    sync.WaitGroup
}

// NewRecorder returns a Recorder appending to store.
func NewRecorder(store auth.AuditStore) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record schedules e for persistence and returns immediately. The write is
// detached from ctx cancellation but keeps its values.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	now := r.now().UTC()
	rec := &auth.AuditEntry{
		ID:        ids.NewAt(now),
		Action:    e.Action,
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		Details:   e.Details,
		Metadata:  e.Metadata,
		CreatedAt: now,
	}
	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(bg, rec)
	}()
}

func (r *Recorder) write(ctx context.Context, rec *auth.AuditEntry) {
	ctx, span := tracer.Start(ctx, "audit.Append")
	defer span.End()
	span.SetAttributes(attribute.String("audit.action", rec.Action))

	if err := r.append(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit write failed")
		obs.AuditWrites.WithLabelValues("error").Inc()
		obs.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"type":       "audit",
			"action":     rec.Action,
			"actor_id":   rec.ActorID,
			"target_id":  rec.TargetID,
			"request_id": RequestIDFromContext(ctx),
		}).Error("audit write failed")
		return
	}
	obs.AuditWrites.WithLabelValues("ok").Inc()
}

// append converts a store panic into an error so it is handled like any
// other failed write.
func (r *Recorder) append(ctx context.Context, rec *auth.AuditEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit store panic: %v", p)
		}
	}()
	return r.store.Append(ctx, rec)
}

// Flush blocks until every scheduled write has finished.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

// FlushContext is Flush bounded by ctx.
func (r *Recorder) FlushContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
