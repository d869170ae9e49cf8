// Package scheduler runs the sweep loop: every cycle it drains each
// known queue under a bounded worker pool, fires the daily stats
// rollup, and keeps quarantined queues out of rotation until restart.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/xl-idp/reportsink/broker"
	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/metrics"
	"github.com/xl-idp/reportsink/stats"
	"github.com/xl-idp/reportsink/worker"
	"github.com/xl-idp/reportsink/writer"
)

// auditRetentionDays bounds how long processed-message audit rows are kept.
const auditRetentionDays = 7

// Channel is the broker surface one sweep worker needs.
type Channel interface {
	worker.Channel
	DeclareAndBind(queue, routingKey string) error
	Close() error
}

// Opener hands out fresh broker channels.
type Opener interface {
	OpenChannel() (Channel, error)
}

type brokerOpener struct{ conn *broker.Connection }

// Broker adapts the concrete broker connection to the Opener surface.
func Broker(conn *broker.Connection) Opener { return brokerOpener{conn} }

func (o brokerOpener) OpenChannel() (Channel, error) {
	ch, err := o.conn.OpenChannel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Scheduler owns the sweep loop. Construct one per process.
type Scheduler struct {
	Registry *config.Registry
	Conn     Opener
	Store    worker.Store
	Stats    *stats.Store
	Sink     worker.Sink
	Dump     worker.Sink
	Notifier worker.Notifier

	BatchSize   int
	Parallelism int64
	SweepDelay  time.Duration

	// Now is the clock; it exists so tests can pin time.
	Now func() time.Time

	mu          sync.Mutex
	quarantined map[string]struct{}
}

// Run declares all queue bindings, then sweeps until ctx is cancelled.
// Each sweep is awaited in full before the rollup check and the
// inter-sweep sleep; cancellation stops new sweeps but never interrupts
// an in-flight drain.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Now == nil {
		s.Now = time.Now
	}
	s.quarantined = make(map[string]struct{})

	if err := s.declareAll(); err != nil {
		return err
	}

	var latch = stats.NewDayLatch(s.Registry.DayBoundary, s.Registry.Location)
	var sem = semaphore.NewWeighted(s.Parallelism)

	for {
		s.sweep(ctx, sem)

		if latch.Due(s.Now()) {
			// The rollup runs on its own context so a shutdown signal
			// arriving mid-sweep cannot clip the daily send.
			s.rollup(context.Background())
		}

		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-time.After(s.SweepDelay):
		}
	}
}

// declareAll binds every configured queue to the exchange once, up front,
// so drains never race declarations.
func (s *Scheduler) declareAll() error {
	ch, err := s.Conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	for queue, routingKey := range s.Registry.Queues {
		if err = ch.DeclareAndBind(queue, routingKey); err != nil {
			return err
		}
	}
	log.WithField("queues", len(s.Registry.Queues)).Info("declared queue bindings")
	return nil
}

// sweep launches one drain per schedulable queue, bounded by the pool,
// and blocks until every drain of the sweep has finished. Awaiting the
// whole sweep guarantees a queue is never drained by two workers at
// once: the next sweep starts only after this one's channels are closed.
func (s *Scheduler) sweep(ctx context.Context, sem *semaphore.Weighted) {
	var queues = make([]string, 0, len(s.Registry.Queues))
	for q := range s.Registry.Queues {
		queues = append(queues, q)
	}
	sort.Strings(queues)

	var wg sync.WaitGroup
	for _, queue := range queues {
		if s.isQuarantined(queue) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			defer sem.Release(1)

			// Drains run on their own context: a shutdown signal stops
			// new sweeps but must not cancel a flush mid-batch.
			if err := s.drain(context.Background(), queue); err != nil {
				log.WithFields(log.Fields{"queue": queue, "err": err}).
					Error("drain aborted")
			}
		}(queue)
	}
	wg.Wait()
}

// drain runs one worker over one queue on a fresh channel.
func (s *Scheduler) drain(ctx context.Context, queue string) error {
	ch, err := s.Conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	var w = &worker.Worker{
		Queue:    queue,
		Registry: s.Registry,
		Channel:  ch,
		Store:    s.Store,
		Writer:   writer.New(s.Store, ch, queue, s.BatchSize),
		Stats:    s.Stats,
		Sink:     s.Sink,
		Dump:     s.Dump,
		Notifier: s.Notifier,
		Now:      s.Now,
	}

	res, err := w.Drain(ctx)
	if res.Quarantined {
		s.quarantine(queue)
	}
	return err
}

// rollup sends the daily summary, resets the counters, and trims the
// audit log.
func (s *Scheduler) rollup(ctx context.Context) {
	records, err := s.Stats.LoadAll()
	if err != nil {
		log.WithField("err", err).Error("loading stats for rollup")
		return
	}

	if s.Notifier != nil {
		if err = s.Notifier.Send(ctx, stats.FormatSummary(records)); err != nil {
			log.WithField("err", err).Warn("rollup delivery failed")
		}
	}

	if err = s.Stats.Clear(); err != nil {
		log.WithField("err", err).Error("clearing stats after rollup")
	}

	var sweep = fmt.Sprintf(
		"DELETE FROM %s.%s WHERE toDate(datetime) <= today() - %d",
		config.AuditDatabase, config.AuditTable, auditRetentionDays)
	if err = s.Store.Exec(ctx, sweep); err != nil {
		log.WithField("err", err).Error("audit retention sweep failed")
	}

	log.WithField("queues", len(records)).Info("daily rollup sent")
}

func (s *Scheduler) isQuarantined(queue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var _, ok = s.quarantined[queue]
	return ok
}

// quarantine removes a queue from rotation until process restart.
func (s *Scheduler) quarantine(queue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantined[queue] = struct{}{}
	metrics.QuarantinedQueues.Set(float64(len(s.quarantined)))
	log.WithField("queue", queue).Warn("queue quarantined until restart")
}
