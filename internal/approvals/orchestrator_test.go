package approvals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCreatesPending(t *testing.T) {
	o := NewOrchestrator(time.Hour)

	id := o.Request("acme", "req-1", map[string]interface{}{"method": "POST"})
	require.NotEmpty(t, id)

	snapshot, ok := o.Status(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, snapshot.Status)
	assert.Equal(t, "acme", snapshot.TenantID)
	assert.Equal(t, "req-1", snapshot.SourceRequestID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), snapshot.ExpiresAt, time.Minute)
}

func TestDecideApprove(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	require.NoError(t, o.Decide(id, StatusApproved, "alice", 0))

	snapshot, _ := o.Status(id)
	assert.Equal(t, StatusApproved, snapshot.Status)
	assert.Equal(t, "alice", snapshot.DecidedBy)
	require.NotNil(t, snapshot.DecidedAt)
}

func TestTerminalTransitionsAreFinal(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	require.NoError(t, o.Decide(id, StatusDenied, "alice", 0))

	// A second decision is rejected and does not mutate the record.
	err := o.Decide(id, StatusApproved, "mallory", 0)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	snapshot, _ := o.Status(id)
	assert.Equal(t, StatusDenied, snapshot.Status)
	assert.Equal(t, "alice", snapshot.DecidedBy)
}

func TestDecideValidation(t *testing.T) {
	o := NewOrchestrator(time.Hour)

	assert.ErrorIs(t, o.Decide("missing", StatusApproved, "", 0), ErrNotFound)

	id := o.Request("acme", "req-1", nil)
	assert.ErrorIs(t, o.Decide(id, StatusExpired, "", 0), ErrInvalidStatus)
	assert.ErrorIs(t, o.Decide(id, StatusPending, "", 0), ErrInvalidStatus)
}

func TestWaitBeforeDecide(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	result := make(chan bool, 1)
	go func() {
		result <- o.Wait(context.Background(), id, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.Decide(id, StatusApproved, "alice", 0))

	select {
	case approved := <-result:
		assert.True(t, approved)
	case <-time.After(time.Second):
		t.Fatal("waiter never unblocked")
	}
}

func TestWaitAfterDecideReturnsImmediately(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)
	require.NoError(t, o.Decide(id, StatusApproved, "alice", 0))

	start := time.Now()
	assert.True(t, o.Wait(context.Background(), id, time.Minute))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestConcurrentWaitersObserveSameOutcome(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	const waiters = 8
	results := make([]bool, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Wait(context.Background(), id, 5*time.Second)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, o.Decide(id, StatusDenied, "alice", 0))
	wg.Wait()

	for i, approved := range results {
		assert.Falsef(t, approved, "waiter %d", i)
	}

	// Decision sticks: a late approve is rejected and status stays denied.
	assert.ErrorIs(t, o.Decide(id, StatusApproved, "bob", 0), ErrAlreadyDecided)
	snapshot, _ := o.Status(id)
	assert.Equal(t, StatusDenied, snapshot.Status)
}

func TestWaitTimeoutExpiresRecord(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	assert.False(t, o.Wait(context.Background(), id, 30*time.Millisecond))

	snapshot, _ := o.Status(id)
	assert.Equal(t, StatusExpired, snapshot.Status)

	// Waiters arriving after the timeout see the expired state.
	assert.False(t, o.Wait(context.Background(), id, time.Minute))
}

func TestWaitCancellationLeavesPending(t *testing.T) {
	o := NewOrchestrator(time.Hour)
	id := o.Request("acme", "req-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		result <- o.Wait(ctx, id, time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.False(t, <-result)

	// The record stays pending so an eventual decision is still recorded.
	snapshot, _ := o.Status(id)
	assert.Equal(t, StatusPending, snapshot.Status)
	require.NoError(t, o.Decide(id, StatusApproved, "alice", 0))
}

func TestSweepExpiresPending(t *testing.T) {
	o := NewOrchestrator(20 * time.Millisecond)
	id := o.Request("acme", "req-1", nil)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, o.SweepExpired())

	snapshot, ok := o.Status(id)
	require.True(t, ok)
	assert.Equal(t, StatusExpired, snapshot.Status)

	// Sweep signalled the rendezvous, so waits return immediately.
	assert.False(t, o.Wait(context.Background(), id, time.Minute))
}

func TestSweepDropsOldTerminalRecords(t *testing.T) {
	o := NewOrchestrator(20 * time.Millisecond)
	id := o.Request("acme", "req-1", nil)
	require.NoError(t, o.Decide(id, StatusApproved, "alice", 0))

	time.Sleep(40 * time.Millisecond)
	o.SweepExpired()

	_, ok := o.Status(id)
	assert.False(t, ok)
}

type recordingNotifier struct {
	mu    sync.Mutex
	seen  []string
	calls chan struct{}
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(ctx context.Context, approval Approval) error {
	r.mu.Lock()
	r.seen = append(r.seen, approval.ID)
	r.mu.Unlock()
	r.calls <- struct{}{}
	return nil
}

func TestNotifierFanOut(t *testing.T) {
	n := &recordingNotifier{calls: make(chan struct{}, 1)}
	o := NewOrchestrator(time.Hour, n)

	id := o.Request("acme", "req-1", nil)

	select {
	case <-n.calls:
	case <-time.After(time.Second):
		t.Fatal("notifier never called")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{id}, n.seen)
}
