package publisher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dinemate/internal/platform/config"
	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
)

// stubRecomputer counts recompute calls and can be told to fail or stall.
// The tier snapshot is taken at entry, before any stall, the way a real
// recompute reads the signal log before doing its work.
type stubRecomputer struct {
	mu       sync.Mutex
	calls    int
	failures int // fail the first N calls
	tier     int // reported as BudgetTier when non-zero
	started  chan struct{}
	block    chan struct{}
	err      error
}

func (r *stubRecomputer) Recompute(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	r.mu.Lock()
	tier := r.tier
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if r.calls <= r.failures {
		return nil, dErrors.New(dErrors.CodeInternal, "transient store failure")
	}
	profile := &models.GroupProfile{
		GroupID:    groupID,
		Dietary:    []string{},
		ComputedAt: time.Now().UTC(),
	}
	if tier != 0 {
		profile.BudgetTier = &tier
	}
	return profile, nil
}

func (r *stubRecomputer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *stubRecomputer) setTier(tier int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tier = tier
}

type PublisherSuite struct {
	suite.Suite
	recomputer *stubRecomputer
	publisher  *Publisher
	groupID    id.GroupID
	ctx        context.Context
}

func (s *PublisherSuite) SetupTest() {
	s.recomputer = &stubRecomputer{}
	s.groupID = id.GroupID(uuid.New())
	s.ctx = context.Background()

	publisher, err := New(s.recomputer, config.Publisher{
		Mode:           config.PublisherModeLazy,
		RecomputeTries: 3,
		RetryBackoff:   time.Millisecond,
	})
	s.Require().NoError(err)
	s.publisher = publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

// TestConstructor verifies mode validation.
func (s *PublisherSuite) TestConstructor() {
	_, err := New(nil, config.Publisher{Mode: config.PublisherModeLazy})
	s.Require().Error(err)

	_, err = New(s.recomputer, config.Publisher{Mode: "sometimes"})
	s.Require().Error(err)
}

// TestLazyReads verifies recompute-on-demand and caching.
func (s *PublisherSuite) TestLazyReads() {
	s.Run("first read recomputes", func() {
		profile, err := s.publisher.Get(s.ctx, s.groupID)
		s.Require().NoError(err)
		s.Equal(s.groupID, profile.GroupID)
		s.Equal(1, s.recomputer.callCount())
	})

	s.Run("fresh cached profile is served without recompute", func() {
		_, err := s.publisher.Get(s.ctx, s.groupID)
		s.Require().NoError(err)
		s.Equal(1, s.recomputer.callCount())
	})

	s.Run("invalidation forces the next read to recompute", func() {
		s.publisher.Invalidate(s.groupID)
		_, err := s.publisher.Get(s.ctx, s.groupID)
		s.Require().NoError(err)
		s.Equal(2, s.recomputer.callCount())
	})

	s.Run("zero group id is rejected", func() {
		_, err := s.publisher.Get(s.ctx, id.GroupID{})
		s.Require().Error(err)
		s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}

// TestSingleflight verifies concurrent stale reads share one recompute.
func (s *PublisherSuite) TestSingleflight() {
	s.recomputer.block = make(chan struct{})

	const readers = 8
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.publisher.Get(s.ctx, s.groupID); err != nil {
				failures.Add(1)
			}
		}()
	}

	// Give the readers a moment to pile onto the flight, then release.
	time.Sleep(20 * time.Millisecond)
	close(s.recomputer.block)
	wg.Wait()

	s.Zero(failures.Load())
	s.Equal(1, s.recomputer.callCount())
}

// TestInvalidationDuringRecompute verifies an invalidation that lands while
// a recompute is in flight is not erased by the write-back: the overtaken
// result is installed stale and the next read recomputes from the new
// history.
func (s *PublisherSuite) TestInvalidationDuringRecompute() {
	s.recomputer.setTier(1)
	_, err := s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)

	s.publisher.Invalidate(s.groupID)
	s.recomputer.started = make(chan struct{})
	s.recomputer.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.publisher.Get(s.ctx, s.groupID)
	}()
	<-s.recomputer.started

	// A new signal lands while the recompute holds the old snapshot.
	s.recomputer.setTier(2)
	s.publisher.Invalidate(s.groupID)

	close(s.recomputer.block)
	<-done

	s.recomputer.started = nil
	s.recomputer.block = nil

	profile, err := s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)
	s.Equal(3, s.recomputer.callCount())
	s.Require().NotNil(profile.BudgetTier)
	s.Equal(2, *profile.BudgetTier)
}

// TestRetries verifies transient failures are retried with eventual
// success, and terminal rejections are not.
func (s *PublisherSuite) TestRetries() {
	s.Run("transient failures retry until success", func() {
		s.recomputer.failures = 2

		profile, err := s.publisher.Get(s.ctx, s.groupID)
		s.Require().NoError(err)
		s.Equal(s.groupID, profile.GroupID)
		s.Equal(3, s.recomputer.callCount())
	})

	s.Run("not-found is not retried", func() {
		recomputer := &stubRecomputer{err: dErrors.New(dErrors.CodeNotFound, "group not found")}
		publisher, err := New(recomputer, config.Publisher{
			Mode:           config.PublisherModeLazy,
			RecomputeTries: 3,
			RetryBackoff:   time.Millisecond,
		})
		s.Require().NoError(err)

		_, err = publisher.Get(s.ctx, s.groupID)
		s.Require().Error(err)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
		s.Equal(1, recomputer.callCount())
	})
}

// TestLastGoodFallback verifies a stale profile is served when every
// recompute attempt fails.
func (s *PublisherSuite) TestLastGoodFallback() {
	first, err := s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)

	s.publisher.Invalidate(s.groupID)
	s.recomputer.mu.Lock()
	s.recomputer.err = dErrors.New(dErrors.CodeInternal, "store down")
	s.recomputer.mu.Unlock()

	served, err := s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)
	s.Equal(first, served)
}

// TestSubscribers verifies change callbacks fire on publication and stop
// after cancellation.
func (s *PublisherSuite) TestSubscribers() {
	var delivered atomic.Int32
	cancel := s.publisher.Subscribe(s.groupID, func(*models.GroupProfile) {
		delivered.Add(1)
	})

	_, err := s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)
	s.Equal(int32(1), delivered.Load())

	cancel()
	s.publisher.Invalidate(s.groupID)
	_, err = s.publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)
	s.Equal(int32(1), delivered.Load())
}

// TestEagerMode verifies invalidation triggers recomputation without a
// read.
func (s *PublisherSuite) TestEagerMode() {
	recomputer := &stubRecomputer{}
	publisher, err := New(recomputer, config.Publisher{
		Mode:           config.PublisherModeEager,
		RecomputeTries: 1,
		RetryBackoff:   time.Millisecond,
	})
	s.Require().NoError(err)

	publisher.Invalidate(s.groupID)

	s.Eventually(func() bool {
		return recomputer.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The eager recompute left a fresh profile; the read is served from it.
	_, err = publisher.Get(s.ctx, s.groupID)
	s.Require().NoError(err)
	s.Equal(1, recomputer.callCount())
}
