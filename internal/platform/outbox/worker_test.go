package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/platform/kafka/producer"
)

type recordingProducer struct {
	mu     sync.Mutex
	msgs   []*producer.Message
	failOn map[string]int // event type -> remaining failures
}

func (p *recordingProducer) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.failOn[msg.Headers["event_type"]]; n > 0 {
		p.failOn[msg.Headers["event_type"]] = n - 1
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingProducer) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Headers["event_type"])
	}
	return out
}

type WorkerSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
	prod  *recordingProducer
	base  time.Time
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.prod = &recordingProducer{failOn: map[string]int{}}
	s.base = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
}

func (s *WorkerSuite) newWorker(opts ...WorkerOption) *Worker {
	opts = append([]WorkerOption{
		WithTopic("credential-events"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewWorker(s.store, s.prod, opts...)
}

func (s *WorkerSuite) append(aggregateID, eventType string, offset time.Duration) *Entry {
	e := NewEntry("credential", aggregateID, eventType, []byte(`{}`))
	e.CreatedAt = s.base.Add(offset)
	s.Require().NoError(s.store.Append(s.ctx, e))
	return e
}

func (s *WorkerSuite) TestPollPublishesOldestFirst() {
	s.append("UNI-2024-AAA111", "credential.minted", 2*time.Second)
	s.append("UNI-2024-AAA111", "credential.created", time.Second)

	w := s.newWorker()
	s.Equal(2, w.poll(s.ctx))
	s.Equal([]string{"credential.created", "credential.minted"}, s.prod.eventTypes())

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	msg := s.prod.msgs[0]
	s.Equal("credential-events", msg.Topic)
	s.Equal("UNI-2024-AAA111", string(msg.Key))
	s.Equal("credential", msg.Headers["aggregate_type"])
}

func (s *WorkerSuite) TestFailureHoldsBackLaterEntriesOfSameAggregate() {
	s.append("UNI-2024-AAA111", "credential.created", time.Second)
	s.append("UNI-2024-AAA111", "credential.minted", 2*time.Second)
	s.append("UNI-2024-BBB222", "credential.revoked", 3*time.Second)
	s.prod.failOn["credential.created"] = 1

	w := s.newWorker()
	s.Equal(1, w.poll(s.ctx), "only the unrelated aggregate goes out")
	s.Equal([]string{"credential.revoked"}, s.prod.eventTypes())

	s.Equal(2, w.poll(s.ctx), "retry keeps per-aggregate order")
	s.Equal([]string{"credential.revoked", "credential.created", "credential.minted"}, s.prod.eventTypes())
}

func (s *WorkerSuite) TestBatchSizeBoundsOnePoll() {
	for i := 0; i < 5; i++ {
		s.append("UNI-2024-AAA111", "credential.created", time.Duration(i)*time.Second)
	}
	w := s.newWorker(WithBatchSize(2))
	s.Equal(2, w.poll(s.ctx))

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), pending)
}

func (s *WorkerSuite) TestStopDrainsPendingEntries() {
	w := s.newWorker(WithPollInterval(time.Hour))
	w.Start()

	s.append("UNI-2024-AAA111", "credential.created", 0)
	s.append("UNI-2024-BBB222", "credential.created", time.Second)

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(w.Stop(ctx))
	s.Len(s.prod.eventTypes(), 2)
}

func (s *WorkerSuite) TestDrainGivesUpWhenBrokerRejectsEverything() {
	s.append("UNI-2024-AAA111", "credential.created", 0)
	s.prod.failOn["credential.created"] = 1_000_000

	w := s.newWorker(WithPollInterval(time.Hour))
	w.Start()

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(w.Stop(ctx))

	pending, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), pending, "unpublished entries stay for the next process")
}

func (s *WorkerSuite) TestRetentionRemovesOldPublishedEntries() {
	old := s.append("UNI-2024-AAA111", "credential.created", 0)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, old.ID, time.Now().Add(-48*time.Hour)))
	fresh := s.append("UNI-2024-BBB222", "credential.created", time.Second)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, fresh.ID, time.Now()))
	s.append("UNI-2024-CCC333", "credential.created", 2*time.Second)

	w := s.newWorker(WithRetention(24 * time.Hour))
	w.maintain(s.ctx)

	s.Len(s.store.entries, 2)
	_, kept := s.store.entries[fresh.ID]
	s.True(kept)
}
