// Package delivery implements C8, the delivery engine: a bounded
// worker pool that POSTs outbox activities to remote inboxes with HTTP
// Signatures attached, retrying transient failures with backoff and
// giving up permanently on the rest (SPEC_FULL.md section 4.8).
//
// The worker pool is the teacher's tasks.Queuer/tasks.MemoryQueue/
// tasks.Forward pattern (a buffered channel of work drained by one
// goroutine, tasks.Forward.Run posting via http.Client) generalized
// from a single drain loop to N concurrent workers.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one outbound delivery: a pre-serialized activity body headed
// to a single recipient inbox. Grounded on tasks.Forward, which pairs
// a serialized Activity with a single Target URL.
type Job struct {
	Recipient  string
	ActivityID string
	SenderIRI  string
	Body       []byte
	Attempt    int
}

const maxAttempts = 8

// backoff mirrors an exponential schedule capped at one hour, doubling
// per attempt starting at 30 seconds.
func backoff(attempt int) time.Duration {
	d := 30 * time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > time.Hour {
			return time.Hour
		}
	}
	return d
}

// requeuer is satisfied by store.ActivityStore; narrowed so tests can
// stub it without a full store.
type requeuer interface {
	DeliveryRequeue(ctx context.Context, recipient, activityID string, attempt int, notBefore time.Time) error
}

// Engine is the C8 worker pool. Build with NewEngine, call Start once,
// then Enqueue jobs as the outbox pipeline expands recipients.
type Engine struct {
	client    *http.Client
	store     requeuer
	signerFor func(senderIRI string) (Signer, error)
	keyID     func(senderIRI string) string
	workers   int
	jobs      chan Job
	metrics   *Metrics
	log       *zap.Logger

	wg sync.WaitGroup
}

// NewEngine builds a delivery engine. Every local actor signs with its
// own key (keystore.Registry.SignerFor), not one server-wide key, so
// signerFor resolves a Signer per outbound job's sender. keyIDFor maps
// a local sender actor IRI to the keyId advertised in its actor
// document (typically senderIRI+"#main-key").
func NewEngine(client *http.Client, activityStore requeuer, signerFor func(string) (Signer, error), keyIDFor func(string) string, workers int, metrics *Metrics, log *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		client:    client,
		store:     activityStore,
		signerFor: signerFor,
		keyID:     keyIDFor,
		workers:   workers,
		jobs:      make(chan Job, 256),
		metrics:   metrics,
		log:       log,
	}
}

// Start spawns the worker pool. Call once before any Enqueue.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

// Stop closes the job channel and waits for in-flight deliveries to
// drain.
func (e *Engine) Stop() {
	close(e.jobs)
	e.wg.Wait()
}

// Enqueue schedules j for delivery. Blocks if the queue is full,
// applying backpressure to the pipeline rather than dropping work.
func (e *Engine) Enqueue(j Job) {
	e.jobs <- j
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for j := range e.jobs {
		e.deliver(ctx, j)
	}
}

func (e *Engine) deliver(ctx context.Context, j Job) {
	e.metrics.attempts.Inc()
	start := time.Now()
	err := e.attempt(ctx, j)
	e.metrics.latency.Observe(time.Since(start).Seconds())

	if err == nil {
		e.metrics.successes.Inc()
		return
	}

	outcome, ok := err.(*deliveryError)
	if !ok || !outcome.retryable || j.Attempt+1 >= maxAttempts {
		e.metrics.permanent.Inc()
		e.log.Warn("delivery abandoned",
			zap.String("recipient", j.Recipient),
			zap.String("activity", j.ActivityID),
			zap.Int("attempt", j.Attempt),
			zap.Error(err),
		)
		return
	}

	notBefore := time.Now().Add(backoff(j.Attempt))
	if rqErr := e.store.DeliveryRequeue(ctx, j.Recipient, j.ActivityID, j.Attempt+1, notBefore); rqErr != nil {
		e.log.Error("failed to requeue delivery",
			zap.String("recipient", j.Recipient),
			zap.String("activity", j.ActivityID),
			zap.Error(rqErr),
		)
		return
	}
	e.metrics.requeued.Inc()
}

type deliveryError struct {
	err       error
	retryable bool
}

func (d *deliveryError) Error() string { return d.err.Error() }

func (e *Engine) attempt(ctx context.Context, j Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Recipient, bytes.NewReader(j.Body))
	if err != nil {
		return &deliveryError{err: err, retryable: false}
	}
	req.Header.Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	req.Header.Set("Accept", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)

	s, err := e.signerFor(j.SenderIRI)
	if err != nil {
		return &deliveryError{err: err, retryable: false}
	}
	if err := signRequest(req, j.Body, e.keyID(j.SenderIRI), s); err != nil {
		return &deliveryError{err: err, retryable: false}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &deliveryError{err: err, retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return &deliveryError{err: fmt.Errorf("recipient returned %d", resp.StatusCode), retryable: true}
	case resp.StatusCode >= 500:
		return &deliveryError{err: fmt.Errorf("recipient returned %d", resp.StatusCode), retryable: true}
	case resp.StatusCode >= 400:
		return &deliveryError{err: fmt.Errorf("recipient returned %d", resp.StatusCode), retryable: false}
	default:
		return &deliveryError{err: fmt.Errorf("recipient returned %d", resp.StatusCode), retryable: false}
	}
}
