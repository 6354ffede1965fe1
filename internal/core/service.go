// Package core hosts the persistence coordinator: it owns the in-memory state
// document, applies mutations through the rules engine, persists every change
// to the state store and keeps the blob store in step with the rx metadata.
package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"btxclinic/internal/blob"
	"btxclinic/pkg/domain"
)

// Service is the only owner of the state document. Reads return deep copies;
// writes go through commit.
type Service struct {
	state    domain.StateStore
	blobs    blob.Store
	engine   *domain.RulesEngine
	clock    Clock
	now      func() time.Time
	newID    func() string
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	renderer Renderer
	mu       sync.RWMutex
	doc      domain.Document
}

// Open loads the document from the state store. When the store is empty a
// fresh document is created and persisted before Open returns.
func Open(ctx context.Context, state domain.StateStore, blobs blob.Store, opts ...ServiceOption) (*Service, error) {
	if state == nil {
		return nil, errors.New("state store is required")
	}
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Service{
		state:    state,
		blobs:    blobs,
		engine:   o.engine,
		clock:    o.clock,
		newID:    o.newID,
		logger:   o.logger,
		audit:    o.audit,
		metrics:  o.metrics,
		tracer:   o.tracer,
		renderer: o.renderer,
	}
	s.now = func() time.Time { return s.clock.Now().UTC().Truncate(time.Millisecond) }

	err := s.run(ctx, "open", "", "", func(ctx context.Context) (string, error) {
		doc, ok, err := state.Load(ctx)
		if err != nil {
			return "", fmt.Errorf("load state: %w", err)
		}
		if ok {
			doc.Normalize(s.now())
			s.doc = doc
			return "", nil
		}
		doc = domain.NewDocument(s.now())
		if err := state.Save(ctx, doc); err != nil {
			return "", fmt.Errorf("save initial state: %w", err)
		}
		s.logger.Info("initialized state document", "state_driver", state.Driver())
		s.doc = doc
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Document returns a deep copy of the current state document.
func (s *Service) Document() domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// StateDriver reports the configured state store backend.
func (s *Service) StateDriver() string { return s.state.Driver() }

// BlobDriver reports the configured blob store backend.
func (s *Service) BlobDriver() blob.Driver { return s.blobs.Driver() }

// run wraps an operation with tracing, metrics, audit and logging. fn returns
// the id of the affected record when there is one.
func (s *Service) run(ctx context.Context, op string, entity EntityType, action Action, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	s.logger.Debug("operation started", "op", op)

	id, err := fn(ctx)

	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	entry := AuditEntry{
		Timestamp: s.now(),
		Operation: op,
		Entity:    entity,
		Action:    action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  elapsed,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "op", op, "id", id, "err", err)
	} else {
		s.logger.Debug("operation completed", "op", op, "id", id, "duration", elapsed)
	}
	s.audit.Record(ctx, entry)
	return err
}

// OrderingContract names how a mutation sequences its state save against the
// blob store writes it triggers.
type OrderingContract string

const (
	// StateOnly mutations never touch the blob store.
	StateOnly OrderingContract = "state_only"
	// StageBlobsThenCommit writes every new blob before the state save. A
	// failure in between leaves unreferenced blobs, never a dangling row.
	StageBlobsThenCommit OrderingContract = "stage_blobs_then_commit"
	// CommitThenReleaseBlobs deletes blobs only after the state save
	// succeeded. A failure in between leaves unreferenced blobs, never a
	// dangling row.
	CommitThenReleaseBlobs OrderingContract = "commit_then_release_blobs"
)

type stagedBlob struct {
	id   string
	mime string
	data []byte
	meta map[string]string
}

// mutation collects what an apply function changed on the working copy.
type mutation struct {
	changes []domain.Change
	stage   []stagedBlob
	release []string
	views   []View
}

func (m *mutation) record(entity EntityType, action Action, before, after any) {
	m.changes = append(m.changes, domain.Change{Entity: entity, Action: action, Before: before, After: after})
}

func (m *mutation) refresh(views ...View) {
	m.views = append(m.views, views...)
}

// contract reports the ordering this mutation is committed under.
func (m *mutation) contract() OrderingContract {
	switch {
	case len(m.stage) > 0:
		return StageBlobsThenCommit
	case len(m.release) > 0:
		return CommitThenReleaseBlobs
	default:
		return StateOnly
	}
}

// commit runs one mutation against a clone of the document: apply, rules,
// staged blob writes, state save, then the in-memory swap, then blob releases.
// The in-memory document only changes when the state save succeeds.
func (s *Service) commit(ctx context.Context, apply func(doc *domain.Document, m *mutation) error) (domain.Result, error) {
	s.mu.Lock()
	next := s.doc.Clone()
	m := &mutation{}
	if err := apply(&next, m); err != nil {
		s.mu.Unlock()
		return domain.Result{}, err
	}
	res, err := s.engine.Evaluate(ctx, next, m.changes)
	if err != nil {
		s.mu.Unlock()
		return domain.Result{}, fmt.Errorf("evaluate rules: %w", err)
	}
	if res.HasBlocking() {
		s.mu.Unlock()
		return res, domain.RuleViolationError{Result: res}
	}
	s.logger.Debug("committing mutation", "contract", m.contract(), "changes", len(m.changes))

	for _, b := range m.stage {
		if _, err := s.blobs.Put(ctx, b.id, bytes.NewReader(b.data), blob.PutOptions{ContentType: b.mime, Metadata: b.meta}); err != nil {
			s.mu.Unlock()
			s.warnOrphans(m.stage, "blob staging failed")
			return res, fmt.Errorf("put blob %s: %w", b.id, err)
		}
	}

	next.Meta.UpdatedAt = domain.NewTimestamp(s.now())
	if err := s.state.Save(ctx, next); err != nil {
		s.mu.Unlock()
		if len(m.stage) > 0 {
			s.warnOrphans(m.stage, "state save failed after blob staging")
		}
		return res, fmt.Errorf("save state: %w", err)
	}
	s.doc = next

	cleanupErr := s.releaseBlobs(ctx, m.release)
	s.mu.Unlock()

	s.refresh(ctx, m.views)
	if cleanupErr != nil {
		return res, cleanupErr
	}
	return res, nil
}

// releaseBlobs deletes blobs whose rows are gone. Every id is attempted; the
// failures are collected into a BlobCleanupError.
func (s *Service) releaseBlobs(ctx context.Context, ids []string) error {
	var (
		failed []string
		errs   []error
	)
	for _, id := range ids {
		if _, err := s.blobs.Delete(ctx, id); err != nil && !errors.Is(err, blob.ErrInvalidKey) {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("delete blob %s: %w", id, err))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	s.logger.Warn("blob cleanup failed, orphaned blobs left behind", "ids", failed)
	return &BlobCleanupError{IDs: failed, Err: errors.Join(errs...)}
}

func (s *Service) warnOrphans(staged []stagedBlob, msg string) {
	ids := make([]string, 0, len(staged))
	for _, b := range staged {
		ids = append(ids, b.id)
	}
	s.logger.Warn(msg, "ids", ids)
}

func (s *Service) today() string {
	return s.clock.Now().Format(dateLayout)
}

const dateLayout = "2006-01-02"
