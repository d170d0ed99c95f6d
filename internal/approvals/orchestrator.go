// Package approvals manages human-in-the-loop approval records and the
// rendezvous that blocks admissions until a decision arrives.
package approvals

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of an approval record. Pending transitions monotonically to
// exactly one terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool { return s != StatusPending }

var (
	ErrNotFound       = errors.New("approval not found")
	ErrAlreadyDecided = errors.New("approval already decided")
	ErrInvalidStatus  = errors.New("decision must be approved or denied")
)

// Approval is the externally visible snapshot of one approval record.
type Approval struct {
	ID              string                 `json:"id"`
	TenantID        string                 `json:"tenant_id"`
	SourceRequestID string                 `json:"request_id"`
	Status          Status                 `json:"status"`
	CreatedAt       time.Time              `json:"created_at"`
	ExpiresAt       time.Time              `json:"expires_at"`
	DecidedAt       *time.Time             `json:"decided_at,omitempty"`
	DecidedBy       string                 `json:"decided_by,omitempty"`
	DurationHint    time.Duration          `json:"-"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

// record pairs the approval with its rendezvous: a channel closed exactly
// once, under the orchestrator lock, when the record turns terminal. Every
// waiter that parked before the close unblocks; waiters arriving after see
// the terminal status before parking.
type record struct {
	Approval
	done chan struct{}
}

// Orchestrator owns the approval table. A single mutex serializes
// decide/wait/sweep per the table's scale; the rendezvous channel carries
// the cross-request wakeup.
type Orchestrator struct {
	mu      sync.Mutex
	records map[string]*record

	ttl       time.Duration
	notifiers []Notifier
}

func NewOrchestrator(ttl time.Duration, notifiers ...Notifier) *Orchestrator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Orchestrator{
		records:   make(map[string]*record),
		ttl:       ttl,
		notifiers: notifiers,
	}
}

// Request creates a PENDING approval and fans out notifications.
// Notification delivery is asynchronous and best-effort; a failing notifier
// never blocks or fails the request.
func (o *Orchestrator) Request(tenantID, sourceRequestID string, details map[string]interface{}) string {
	now := time.Now()
	rec := &record{
		Approval: Approval{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			SourceRequestID: sourceRequestID,
			Status:          StatusPending,
			CreatedAt:       now,
			ExpiresAt:       now.Add(o.ttl),
			Details:         details,
		},
		done: make(chan struct{}),
	}

	o.mu.Lock()
	o.records[rec.ID] = rec
	o.mu.Unlock()

	slog.Info("approval requested", "approval_id", rec.ID, "tenant", tenantID, "request_id", sourceRequestID)

	snapshot := rec.Approval
	for _, n := range o.notifiers {
		go func(n Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Notify(ctx, snapshot); err != nil {
				slog.Warn("approval notification failed", "approval_id", snapshot.ID, "notifier", n.Name(), "error", err)
			}
		}(n)
	}

	return rec.ID
}

// Decide transitions a PENDING record to APPROVED or DENIED and signals the
// rendezvous. Deciding an already-terminal record returns ErrAlreadyDecided
// without mutating it. durationHint is recorded for future standing-approval
// rules; it is not enforced.
func (o *Orchestrator) Decide(id string, status Status, decidedBy string, durationHint time.Duration) error {
	if status != StatusApproved && status != StatusDenied {
		return ErrInvalidStatus
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status.Terminal() {
		return ErrAlreadyDecided
	}

	now := time.Now()
	rec.Status = status
	rec.DecidedAt = &now
	rec.DecidedBy = decidedBy
	rec.DurationHint = durationHint
	close(rec.done)

	slog.Info("approval decided", "approval_id", id, "status", status, "decided_by", decidedBy)
	return nil
}

// Wait blocks until the record leaves PENDING, the timeout elapses, or ctx
// is cancelled. It returns true iff the final state is APPROVED. A timeout
// expires the record so that every concurrent waiter observes the same
// outcome; cancellation abandons the wait and leaves the record PENDING for
// a later decision.
func (o *Orchestrator) Wait(ctx context.Context, id string, timeout time.Duration) bool {
	o.mu.Lock()
	rec, ok := o.records[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	// Terminal-state check before parking: a waiter arriving after Decide
	// must return immediately, never park on an already-closed channel's
	// successor.
	if rec.Status.Terminal() {
		status := rec.Status
		o.mu.Unlock()
		return status == StatusApproved
	}
	done := rec.done
	o.mu.Unlock()

	if timeout <= 0 {
		timeout = time.Until(rec.ExpiresAt)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		o.expire(id)
	case <-ctx.Done():
		slog.Debug("approval wait abandoned", "approval_id", id)
		return false
	}

	o.mu.Lock()
	status := rec.Status
	o.mu.Unlock()
	return status == StatusApproved
}

// expire transitions a still-PENDING record to EXPIRED and signals its
// rendezvous. No-op when the record is already terminal or gone.
func (o *Orchestrator) expire(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.records[id]
	if !ok || rec.Status.Terminal() {
		return
	}

	now := time.Now()
	rec.Status = StatusExpired
	rec.DecidedAt = &now
	close(rec.done)

	slog.Warn("approval expired", "approval_id", id)
}

// Status returns a snapshot of the record.
func (o *Orchestrator) Status(id string) (Approval, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.records[id]
	if !ok {
		return Approval{}, false
	}
	return rec.Approval, true
}

// SweepExpired expires pending records past their deadline and drops
// terminal records one TTL after their decision. Returns the number of
// newly expired records.
func (o *Orchestrator) SweepExpired() int {
	now := time.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	expired := 0
	for id, rec := range o.records {
		switch {
		case rec.Status == StatusPending && now.After(rec.ExpiresAt):
			rec.Status = StatusExpired
			decidedAt := now
			rec.DecidedAt = &decidedAt
			close(rec.done)
			expired++
		case rec.Status.Terminal() && rec.DecidedAt != nil && now.Sub(*rec.DecidedAt) > o.ttl:
			delete(o.records, id)
		}
	}

	if expired > 0 {
		slog.Info("pending approvals expired by sweep", "count", expired)
	}
	return expired
}

// StartSweeper runs SweepExpired on the given interval until stop closes.
func (o *Orchestrator) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.SweepExpired()
			case <-stop:
				return
			}
		}
	}()
}
