package approvals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Notifier tells a human, out of band, that an approval is pending. The
// transports (chat DMs, desktop popups, TTY prompts) live outside this
// repository; implementations here cover logs and generic webhooks.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, approval Approval) error
}

// SlogNotifier surfaces pending approvals in the process log. Useful for
// development and as a last-resort audit trail of notification fan-out.
type SlogNotifier struct{}

func (SlogNotifier) Name() string { return "slog" }

func (SlogNotifier) Notify(ctx context.Context, approval Approval) error {
	slog.Info("approval pending decision",
		"approval_id", approval.ID,
		"tenant", approval.TenantID,
		"request_id", approval.SourceRequestID,
		"expires_at", approval.ExpiresAt.Format(time.RFC3339),
	)
	return nil
}

// WebhookNotifier POSTs approval snapshots to configured URLs through a
// bounded queue and worker pool, so slow receivers cannot back-pressure the
// admission path.
type WebhookNotifier struct {
	urls       []string
	httpClient *http.Client
	queue      chan delivery
	wg         sync.WaitGroup
}

type delivery struct {
	url     string
	payload []byte
	id      string
}

func NewWebhookNotifier(urls []string, workers int) *WebhookNotifier {
	if workers <= 0 {
		workers = 2
	}
	n := &WebhookNotifier{
		urls:       urls,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan delivery, 256),
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify enqueues one delivery per configured URL. A full queue drops the
// delivery rather than blocking the caller.
func (n *WebhookNotifier) Notify(ctx context.Context, approval Approval) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event":    "approval.pending",
		"approval": approval,
	})
	if err != nil {
		return err
	}

	for _, url := range n.urls {
		select {
		case n.queue <- delivery{url: url, payload: payload, id: approval.ID}:
		default:
			slog.Warn("webhook queue full, dropping notification", "approval_id", approval.ID, "url", url)
		}
	}
	return nil
}

func (n *WebhookNotifier) worker() {
	defer n.wg.Done()
	for d := range n.queue {
		if err := n.deliver(d); err != nil {
			slog.Warn("webhook delivery failed", "approval_id", d.id, "url", d.url, "error", err)
		}
	}
}

func (n *WebhookNotifier) deliver(d delivery) error {
	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(d.payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Event", "approval.pending")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Close drains the queue and stops the workers.
func (n *WebhookNotifier) Close() {
	close(n.queue)
	n.wg.Wait()
}
