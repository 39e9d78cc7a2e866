package dispatcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Job is one queued workflow run.
type Job struct {
	RunID         string
	ItemID        string
	MaxIterations int
	Attempt       int
}

// Runner executes a queued workflow run
type Runner interface {
	Execute(ctx context.Context, job *Job) error
}

// Config controls dispatcher behaviour
type Config struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// Dispatcher serialises execution per work item and retries transiently
// failed runs with backoff
type Dispatcher struct {
	runner Runner
	cfg    Config

	queue chan *queueItem

	keyedLocks *keyedMutex

	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once
}

type queueItem struct {
	job     *Job
	attempt int
}

// New creates a dispatcher with the provided configuration
func New(runner Runner, cfg Config) *Dispatcher {
	normalized := normalizeConfig(cfg)
	d := &Dispatcher{
		runner:     runner,
		cfg:        normalized,
		queue:      make(chan *queueItem, normalized.QueueSize),
		keyedLocks: newKeyedMutex(),
		stopCh:     make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 15 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues a new workflow run for execution
func (d *Dispatcher) Enqueue(job *Job) error {
	if job == nil {
		return errors.New("dispatcher enqueue: job is nil")
	}

	select {
	case <-d.stopCh:
		return ErrQueueClosed
	default:
	}

	select {
	case d.queue <- &queueItem{job: job, attempt: 1}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item *queueItem) {
	job := item.job
	job.Attempt = item.attempt

	// Two runs for the same item never overlap.
	d.keyedLocks.Lock(job.ItemID)

	ctx := context.Background()
	err := d.runner.Execute(ctx, job)

	d.keyedLocks.Unlock(job.ItemID)

	if err != nil {
		log.Printf("[Dispatcher] Run %s attempt %d failed: %v", job.RunID, item.attempt, err)
		if IsPermanent(err) {
			log.Printf("[Dispatcher] Run %s attempt %d marked non-retryable; no further attempts", job.RunID, item.attempt)
			return
		}
		d.handleRetry(item, err)
		return
	}

	log.Printf("[Dispatcher] Run %s attempt %d succeeded", job.RunID, item.attempt)
}

func (d *Dispatcher) handleRetry(item *queueItem, execErr error) {
	if item.attempt >= d.cfg.MaxAttempts {
		log.Printf("[Dispatcher] Run %s exceeded max attempts (%d): %v", item.job.RunID, d.cfg.MaxAttempts, execErr)
		return
	}

	nextAttempt := item.attempt + 1
	delay := d.backoffDuration(nextAttempt)
	log.Printf("[Dispatcher] Scheduling retry %d for run %s in %s", nextAttempt, item.job.RunID, delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			d.enqueueRetry(&queueItem{
				job:     item.job,
				attempt: nextAttempt,
			})
		case <-d.stopCh:
			return
		}
	}()
}

func (d *Dispatcher) enqueueRetry(item *queueItem) {
	for {
		select {
		case <-d.stopCh:
			return
		case d.queue <- item:
			return
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (d *Dispatcher) backoffDuration(attempt int) time.Duration {
	backoff := float64(d.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.cfg.BackoffMultiplier
		if backoff >= float64(d.cfg.MaxBackoff) {
			return d.cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Shutdown gracefully stops the dispatcher
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		close(d.stopCh)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return
	case <-done:
		return
	}
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*sync.Mutex),
	}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()

	if !ok {
		return
	}

	m.Unlock()
}
