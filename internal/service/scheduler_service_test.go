package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/observability"
	"github.com/spec-kit/patient-queue-service/internal/repository"
	"github.com/spec-kit/patient-queue-service/pkg/util"
)

func seedWaiting(t *testing.T, ledger repository.Ledger, roomRef *string, priority domain.TicketPriority, createdAt time.Time, token string) *domain.QueueTicket {
	t.Helper()
	ticket := &domain.QueueTicket{
		EncounterRef:    "enc-" + token,
		RoomRef:         roomRef,
		Priority:        priority,
		Status:          domain.TicketStatusWaiting,
		ValidationToken: token,
		CreatedAt:       createdAt,
		ExpiresAt:       createdAt.Add(2 * time.Hour),
	}
	require.NoError(t, ledger.Create(context.Background(), ticket))
	return ticket
}

func newTestScheduler(ledger repository.Ledger, clock *fakeClock) *SchedulerService {
	return NewSchedulerService(ledger, nil, observability.NewMetrics(), 3).WithClock(clock.Now)
}

func TestCallNext_PrefersHigherPriority(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"

	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")
	urgent := seedWaiting(t, ledger, &room, domain.TicketPriorityUrgent, clock.Now().Add(time.Minute), "tok-b")

	called, err := scheduler.CallNext(context.Background(), room, "dr-1")
	require.NoError(t, err)
	assert.Equal(t, urgent.ID, called.ID, "urgent ticket wins even though it arrived later")
	assert.Equal(t, domain.TicketStatusInProgress, called.Status)
	require.NotNil(t, called.PhysicianRef)
	assert.Equal(t, "dr-1", *called.PhysicianRef)
	require.NotNil(t, called.CalledAt)
}

func TestCallNext_FIFOWithinTier(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"

	first := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")
	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now().Add(time.Minute), "tok-b")

	called, err := scheduler.CallNext(context.Background(), room, "dr-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, called.ID, "earliest ticket wins the tie")
}

func TestCallNext_IncludesGlobalLane(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(ledger, clock)

	otherRoom := "room-2"
	seedWaiting(t, ledger, &otherRoom, domain.TicketPriorityUrgent, clock.Now(), "tok-other")
	global := seedWaiting(t, ledger, nil, domain.TicketPriorityNormal, clock.Now(), "tok-global")

	called, err := scheduler.CallNext(context.Background(), "room-1", "dr-1")
	require.NoError(t, err)
	assert.Equal(t, global.ID, called.ID, "another room's ticket is invisible, the global lane is not")
}

func TestCallNext_EmptyQueue(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)

	_, err := scheduler.CallNext(context.Background(), "room-1", "dr-1")
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestCallNext_SkipsOverdueTickets(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"

	seedWaiting(t, ledger, &room, domain.TicketPriorityUrgent, clock.Now(), "tok-old")
	clock.Advance(3 * time.Hour)

	_, err := scheduler.CallNext(context.Background(), room, "dr-1")
	assert.ErrorIs(t, err, ErrNoCandidate, "a ticket past expires_at is never callable")
}

func TestCallNext_SingleWinnerUnderConcurrency(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"
	ticket := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-only")

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*domain.QueueTicket, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = scheduler.CallNext(context.Background(), room, "dr-1")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			winners++
			assert.Equal(t, ticket.ID, results[i].ID)
			continue
		}
		ok := errs[i] == ErrNoCandidate || util.HasCode(errs[i], util.CodeContention)
		assert.True(t, ok, "losers see NoCandidate or Contention, got %v", errs[i])
	}
	assert.Equal(t, 1, winners, "exactly one caller wins the only ticket")
}

func TestCallNext_RacesExpireToOneOutcome(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"
	ticket := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-race")

	var wg sync.WaitGroup
	var callErr, expireErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, callErr = scheduler.CallNext(context.Background(), room, "dr-1")
	}()
	go func() {
		defer wg.Done()
		_, expireErr = scheduler.Expire(context.Background(), ticket.ID, "manual")
	}()
	wg.Wait()

	final, err := ledger.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)

	switch final.Status {
	case domain.TicketStatusInProgress:
		assert.NoError(t, callErr)
		assert.True(t, util.IsStaleTransition(expireErr), "expire lost the swap")
	case domain.TicketStatusExpired:
		assert.NoError(t, expireErr)
		require.Error(t, callErr)
		ok := callErr == ErrNoCandidate || util.HasCode(callErr, util.CodeContention)
		assert.True(t, ok)
	default:
		t.Fatalf("ticket ended in %s, expected IN_PROGRESS or EXPIRED", final.Status)
	}
}

func TestCallNext_ContentionAfterRetryBudget(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	room := "room-1"
	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-hot")

	scheduler := newTestScheduler(&alwaysStaleLedger{Ledger: ledger}, clock)
	_, err := scheduler.CallNext(context.Background(), room, "dr-1")
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodeContention))
}

func TestCallNext_CancelledContextSurfacesContention(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scheduler.CallNext(ctx, "room-1", "dr-1")
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodeContention))
}

func TestComplete_Lifecycle(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"
	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")

	called, err := scheduler.CallNext(context.Background(), room, "dr-1")
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	completed, err := scheduler.Complete(context.Background(), called.ID, "dr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.False(t, completed.CompletedAt.Before(*completed.CalledAt))
}

func TestComplete_PhysicianMismatch(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"
	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")

	called, err := scheduler.CallNext(context.Background(), room, "dr-y")
	require.NoError(t, err)

	_, err = scheduler.Complete(context.Background(), called.ID, "dr-x")
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodePhysicianMismatch))
}

func TestComplete_RequiresInProgress(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)
	room := "room-1"
	ticket := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")

	_, err := scheduler.Complete(context.Background(), ticket.ID, "dr-1")
	require.Error(t, err)
	assert.True(t, util.HasCode(err, util.CodeNotInProgress))
}

func TestExpire_SecondCallIsStale(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	scheduler := newTestScheduler(ledger, clock)
	ticket := seedWaiting(t, ledger, nil, domain.TicketPriorityLow, clock.Now(), "tok-a")

	expired, err := scheduler.Expire(context.Background(), ticket.ID, "manual")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)

	_, err = scheduler.Expire(context.Background(), ticket.ID, "manual")
	require.Error(t, err)
	assert.True(t, util.IsStaleTransition(err), "second expire reports the race, callers treat it as already expired")
}

// alwaysStaleLedger loses every compare-and-swap, simulating a ticket that
// keeps being snatched between snapshot and transition.
type alwaysStaleLedger struct {
	repository.Ledger
}

func (l *alwaysStaleLedger) Transition(ctx context.Context, id string, from, to domain.TicketStatus, fields repository.TransitionFields) (*domain.QueueTicket, error) {
	return nil, util.NewStaleTransition(id, string(from), string(domain.TicketStatusInProgress))
}
