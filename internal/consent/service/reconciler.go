// Package service reconciles an operator session with the consent directory: one phone number,
// at most one record, at most one request in flight.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kvkk-permits/internal/consent/client"
	"kvkk-permits/internal/consent/domain"
	"kvkk-permits/internal/host"
	"kvkk-permits/internal/phone"
	"kvkk-permits/internal/security"
	"kvkk-permits/internal/telemetry"
)

// Sentinel errors for local guards; no request is issued when one is returned.
var (
	ErrBusy          = errors.New("a consent request is already in flight")
	ErrNoToken       = errors.New("host did not supply an auth token")
	ErrNoRecord      = errors.New("no consent record is displayed")
	ErrNoCreateOffer = errors.New("no create form is offered")
	ErrNameRequired  = errors.New("full name is required")
)

const defaultRequestTimeout = 15 * time.Second

// ConsentAPI is the directory client surface the reconciler needs.
type ConsentAPI interface {
	Lookup(ctx context.Context, phone string) (client.LookupResult, error)
	Create(ctx context.Context, name, phone string, permitted bool) (domain.Record, error)
	Update(ctx context.Context, rec domain.Record) (domain.Record, error)
}

// Options are the reconciler's collaborators besides the API. Zero values are usable.
type Options struct {
	Host           *host.Bundle
	RequestTimeout time.Duration
	Events         telemetry.EventEmitter
	Logger         *zap.Logger
	PhoneHasher    security.PhoneHasher
	// SessionID tags audit events; a random one is generated when empty.
	SessionID string
}

// Reconciler owns one operator session.
type Reconciler struct {
	api       ConsentAPI
	host      *host.Bundle
	timeout   time.Duration
	events    telemetry.EventEmitter
	log       *zap.Logger
	hasher    security.PhoneHasher
	sessionID string
	operator  string

	mu      sync.Mutex
	snap    domain.Snapshot
	cancel  context.CancelFunc
	subs    map[int]func(domain.Snapshot)
	nextSub int
}

// NewReconciler returns an idle session.
func NewReconciler(api ConsentAPI, opts Options) *Reconciler {
	r := &Reconciler{
		api:       api,
		host:      opts.Host,
		timeout:   opts.RequestTimeout,
		events:    opts.Events,
		log:       opts.Logger,
		hasher:    opts.PhoneHasher,
		sessionID: opts.SessionID,
		operator:  opts.Host.Operator(),
		subs:      make(map[int]func(domain.Snapshot)),
	}
	if r.timeout <= 0 {
		r.timeout = defaultRequestTimeout
	}
	if r.log == nil {
		r.log = zap.L()
	}
	if r.sessionID == "" {
		r.sessionID = uuid.New().String()
	}
	r.log = r.log.With(zap.String("session_id", r.sessionID))
	return r
}

// SessionID identifies this session in logs and audit events.
func (r *Reconciler) SessionID() string {
	return r.sessionID
}

// Snapshot returns a copy of the current session.
func (r *Reconciler) Snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap.Clone()
}

// Subscribe registers fn for every published snapshot. fn runs on the goroutine that changed the
// session and must not block. The returned func unsubscribes.
func (r *Reconciler) Subscribe(fn func(domain.Snapshot)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Cancel aborts the outstanding request, if any. The operation that issued it returns shortly after
// with Loading cleared.
func (r *Reconciler) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Mount searches for the host-supplied requester phone. Without one the session stays idle.
func (r *Reconciler) Mount(ctx context.Context) (domain.Snapshot, error) {
	raw := strings.TrimSpace(r.host.RequesterPhone())
	if raw == "" {
		return r.Snapshot(), nil
	}
	return r.Search(ctx, raw)
}

// Search normalizes raw and looks it up. An invalid number only sets a notice.
func (r *Reconciler) Search(ctx context.Context, raw string) (domain.Snapshot, error) {
	var normalized string
	reqCtx, snap, err := r.start(ctx, func(s *domain.Snapshot) error {
		n, err := phone.Normalize(raw)
		s.Query = raw
		if err != nil {
			s.Notice = errorNotice(msgInvalidPhone)
			return err
		}
		normalized = n
		s.Phone = n
		s.State = domain.StateSearching
		return nil
	})
	if err != nil {
		return snap, err
	}

	log := r.log.With(zap.String("phone_hash", r.hasher.Hash(normalized)))
	log.Debug("consent lookup started")
	result, err := r.api.Lookup(reqCtx, normalized)

	event := r.newEvent(normalized, "lookup")
	snap = r.finish(func(s *domain.Snapshot) {
		switch {
		case err != nil:
			// Keep whatever was displayed; only the request failed.
			s.State = domain.StateIdle
			s.Notice = failureNotice(err, msgLookupFailed)
		case result.Found():
			rec := *result.Record
			s.State = domain.StateFound
			s.Record = &rec
			s.Permitted = rec.Permitted
			s.ShowCreateForm = false
			s.OfferPhone = ""
			s.Notice = nil
		default:
			s.State = domain.StateNotFoundOfferCreate
			s.Record = nil
			s.Permitted = false
			s.ShowCreateForm = true
			s.OfferPhone = normalized
			s.Notice = &domain.Notice{Kind: domain.NoticeInfo, Message: msgNotFound}
		}
	})

	switch {
	case err != nil:
		log.Warn("consent lookup failed", zap.Error(err))
		r.emitFailure(ctx, event, err)
		return snap, err
	case result.Found():
		log.Info("consent record found", zap.String("record_code", result.Record.Code), zap.Bool("permitted", result.Record.Permitted))
		event.EventType = telemetry.EventLookupFound
		event.RecordCode = result.Record.Code
		event.Permitted = boolPtr(result.Record.Permitted)
	default:
		log.Info("consent record not found", zap.String("description", result.NotFound.Description))
		event.EventType = telemetry.EventLookupNotFound
	}
	telemetry.EmitAsync(r.events, ctx, event)
	return snap, nil
}

// SetPermitted writes the consent flag of the displayed record. On failure the flag falls back to
// the last value the directory confirmed.
func (r *Reconciler) SetPermitted(ctx context.Context, permitted bool) (domain.Snapshot, error) {
	return r.update(ctx, func(s domain.Snapshot) bool { return permitted })
}

// Toggle flips the consent flag of the displayed record.
func (r *Reconciler) Toggle(ctx context.Context) (domain.Snapshot, error) {
	return r.update(ctx, func(s domain.Snapshot) bool { return !s.Permitted })
}

func (r *Reconciler) update(ctx context.Context, next func(domain.Snapshot) bool) (domain.Snapshot, error) {
	var want domain.Record
	reqCtx, snap, err := r.start(ctx, func(s *domain.Snapshot) error {
		if s.Record == nil {
			return ErrNoRecord
		}
		permitted := next(*s)
		want = s.Record.WithPermitted(permitted)
		s.Permitted = permitted
		s.State = domain.StateMutating
		return nil
	})
	if err != nil {
		return snap, err
	}

	log := r.log.With(zap.String("record_code", want.Code), zap.Bool("permitted", want.Permitted))
	got, err := r.api.Update(reqCtx, want)

	event := r.newEvent(want.Phone, "update")
	event.RecordCode = want.Code
	snap = r.finish(func(s *domain.Snapshot) {
		s.State = domain.StateFound
		if err != nil {
			s.Permitted = s.Record.Permitted
			s.Notice = failureNotice(err, msgUpdateFailed)
			return
		}
		s.Record = &got
		s.Permitted = got.Permitted
		s.Notice = nil
	})

	if err != nil {
		log.Warn("consent update failed", zap.Error(err))
		r.emitFailure(ctx, event, err)
		return snap, err
	}
	log.Info("consent updated")
	event.EventType = telemetry.EventPermitUpdated
	event.Permitted = boolPtr(got.Permitted)
	telemetry.EmitAsync(r.events, ctx, event)
	return snap, nil
}

// SetDraftPermitted sets the flag the create form will submit. No request is issued.
func (r *Reconciler) SetDraftPermitted(permitted bool) (domain.Snapshot, error) {
	r.mu.Lock()
	var err error
	switch {
	case r.snap.Loading:
		err = ErrBusy
	case !r.snap.ShowCreateForm:
		err = ErrNoCreateOffer
	}
	if err != nil {
		snap := r.snap.Clone()
		r.mu.Unlock()
		return snap, err
	}
	r.snap.Permitted = permitted
	snap := r.snap.Clone()
	r.mu.Unlock()
	r.publish(snap)
	return snap, nil
}

// Create registers the phone the last lookup reported as unknown, with name and the draft flag.
func (r *Reconciler) Create(ctx context.Context, name string) (domain.Snapshot, error) {
	name = strings.TrimSpace(name)
	var normalized string
	var permitted bool
	reqCtx, snap, err := r.start(ctx, func(s *domain.Snapshot) error {
		if !s.ShowCreateForm || s.OfferPhone == "" {
			return ErrNoCreateOffer
		}
		if name == "" {
			s.Notice = errorNotice(msgNameRequired)
			return ErrNameRequired
		}
		normalized = s.OfferPhone
		permitted = s.Permitted
		s.Phone = normalized
		s.State = domain.StateMutating
		return nil
	})
	if err != nil {
		return snap, err
	}

	log := r.log.With(zap.String("phone_hash", r.hasher.Hash(normalized)), zap.Bool("permitted", permitted))
	got, err := r.api.Create(reqCtx, name, normalized, permitted)

	event := r.newEvent(normalized, "create")
	snap = r.finish(func(s *domain.Snapshot) {
		if err != nil {
			s.State = domain.StateNotFoundOfferCreate
			s.Notice = failureNotice(err, msgCreateFailed)
			return
		}
		s.State = domain.StateFound
		s.Record = &got
		s.Permitted = got.Permitted
		s.ShowCreateForm = false
		s.OfferPhone = ""
		s.Notice = &domain.Notice{Kind: domain.NoticeSuccess, Message: msgCreated}
	})

	if err != nil {
		log.Warn("consent create failed", zap.Error(err))
		r.emitFailure(ctx, event, err)
		return snap, err
	}
	log.Info("consent record created", zap.String("record_code", got.Code))
	event.EventType = telemetry.EventRecordCreated
	event.RecordCode = got.Code
	event.Permitted = boolPtr(got.Permitted)
	telemetry.EmitAsync(r.events, ctx, event)
	return snap, nil
}

// start applies the busy and token guards, then prepare, under the lock. If prepare fails its
// changes are still published. Otherwise the session is marked loading and the request context,
// bounded by the request timeout and reachable through Cancel, is returned.
func (r *Reconciler) start(ctx context.Context, prepare func(*domain.Snapshot) error) (context.Context, domain.Snapshot, error) {
	r.mu.Lock()
	if r.snap.Loading {
		snap := r.snap.Clone()
		r.mu.Unlock()
		return nil, snap, ErrBusy
	}
	if !r.host.HasToken() {
		snap := r.snap.Clone()
		r.mu.Unlock()
		return nil, snap, ErrNoToken
	}
	if err := prepare(&r.snap); err != nil {
		snap := r.snap.Clone()
		r.mu.Unlock()
		r.publish(snap)
		return nil, snap, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	r.cancel = cancel
	r.snap.Loading = true
	r.snap.Notice = nil
	snap := r.snap.Clone()
	r.mu.Unlock()
	r.publish(snap)
	return reqCtx, snap, nil
}

// finish applies the outcome and clears Loading.
func (r *Reconciler) finish(apply func(*domain.Snapshot)) domain.Snapshot {
	r.mu.Lock()
	apply(&r.snap)
	r.snap.Loading = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	snap := r.snap.Clone()
	r.mu.Unlock()
	r.publish(snap)
	return snap
}

func (r *Reconciler) publish(snap domain.Snapshot) {
	r.mu.Lock()
	subs := make([]func(domain.Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(snap.Clone())
	}
}

func (r *Reconciler) newEvent(normalizedPhone, operation string) *telemetry.Event {
	event := telemetry.NewEvent(r.sessionID, "")
	event.Operator = r.operator
	event.PhoneHash = r.hasher.Hash(normalizedPhone)
	event.Operation = operation
	return event
}

func (r *Reconciler) emitFailure(ctx context.Context, event *telemetry.Event, err error) {
	event.EventType = telemetry.EventRequestFailed
	event.Outcome = outcome(err)
	telemetry.EmitAsync(r.events, ctx, event)
}

func outcome(err error) string {
	var be *client.BusinessError
	if errors.As(err, &be) {
		return "business_rejected"
	}
	if c := client.CategoryOf(err); c != "" {
		return string(c)
	}
	return "error"
}

func failureNotice(err error, message string) *domain.Notice {
	if client.CategoryOf(err) == client.CategoryCanceled {
		return &domain.Notice{Kind: domain.NoticeInfo, Message: msgRequestAborted}
	}
	return errorNotice(message)
}

func errorNotice(message string) *domain.Notice {
	return &domain.Notice{Kind: domain.NoticeError, Message: message}
}

func boolPtr(b bool) *bool {
	return &b
}
