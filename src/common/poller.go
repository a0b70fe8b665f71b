package common

import (
	"context"
	"log"
	"sync"
	"time"

	"cshop/src/types"
)

// Acquirer answers whether a KHQR fingerprint has settled.
type Acquirer interface {
	CheckPayment(ctx context.Context, md5hash string) (types.AcquirerStatus, error)
}

// Poller drives acquirer checks for live sessions. A supervisor tick
// snapshots the pending sessions and feeds a bounded queue; a fixed worker
// pool does the network calls. A full queue drops the rest of the tick, the
// next tick picks the sessions up again.
type Poller struct {
	sessions    *SessionStore
	acquirer    Acquirer
	coordinator *Coordinator

	interval time.Duration
	grace    time.Duration
	timeout  time.Duration
	workers  int

	queue    chan PaymentSession
	stopCh   chan struct{}
	wg       sync.WaitGroup
	inflight sync.Map
	started  bool
	mu       sync.Mutex
}

type PollerConfig struct {
	Interval  time.Duration
	Grace     time.Duration
	Timeout   time.Duration
	Workers   int
	QueueSize int
}

func NewPoller(sessions *SessionStore, acquirer Acquirer, coordinator *Coordinator, cfg PollerConfig) *Poller {
	return &Poller{
		sessions:    sessions,
		acquirer:    acquirer,
		coordinator: coordinator,
		interval:    cfg.Interval,
		grace:       cfg.Grace,
		timeout:     cfg.Timeout,
		workers:     cfg.Workers,
		queue:       make(chan PaymentSession, cfg.QueueSize),
		stopCh:      make(chan struct{}),
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.worker()
	}
	p.wg.Add(1)
	go p.supervise()
	log.Printf("Payment poller started with %d workers\n", p.workers)
}

// Stop shuts the supervisor down and waits for in-flight checks to finish,
// up to the context deadline.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Payment poller drained")
		return nil
	case <-ctx.Done():
		log.Println("Payment poller drain timed out")
		return ctx.Err()
	}
}

func (p *Poller) supervise() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			close(p.queue)
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Poller) tick() {
	pending := p.sessions.LivePending(p.grace)
	dropped := 0
	for _, s := range pending {
		if _, busy := p.inflight.LoadOrStore(s.ID, struct{}{}); busy {
			continue
		}
		select {
		case p.queue <- s:
		default:
			p.inflight.Delete(s.ID)
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("Poll queue full, deferred %d sessions to the next tick\n", dropped)
	}
}

func (p *Poller) worker() {
	defer p.wg.Done()
	for s := range p.queue {
		p.check(s)
		p.inflight.Delete(s.ID)
	}
}

// check asks the acquirer about one session with a small retry budget.
// Transient failures are left for the next tick.
func (p *Poller) check(s PaymentSession) {
	current, err := p.sessions.Get(s.ID)
	if err != nil || !current.Live() {
		return
	}
	backoffs := []time.Duration{0, 200 * time.Millisecond, 800 * time.Millisecond}
	var status types.AcquirerStatus
	for i, wait := range backoffs {
		if wait > 0 {
			time.Sleep(wait)
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		status, err = p.acquirer.CheckPayment(ctx, s.Fingerprint)
		cancel()
		if err == nil {
			break
		}
		if i == len(backoffs)-1 {
			log.Printf("Acquirer check failed for session %s: %s\n", s.ID, err.Error())
			return
		}
	}
	if status != types.ACQUIRER_PAID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.coordinator.PaymentObserved(ctx, s.OrderID, s.ID, s.Fingerprint, types.SOURCE_POLLER); err != nil {
		log.Printf("Completion for order %d via poller: %s\n", s.OrderID, err.Error())
	}
}
