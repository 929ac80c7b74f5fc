package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/patient-queue-service/internal/domain"
	"github.com/spec-kit/patient-queue-service/internal/repository"
)

func newTestEstimator(ledger repository.Ledger, clock *fakeClock) *EstimatorService {
	return NewEstimatorService(ledger, testQueueConfig()).WithClock(clock.Now)
}

func TestEstimate_PositionFollowsCallOrder(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"

	urgent := seedWaiting(t, ledger, &room, domain.TicketPriorityUrgent, clock.Now(), "tok-u")
	normalEarly := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now().Add(time.Minute), "tok-n1")
	normalLate := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now().Add(2*time.Minute), "tok-n2")

	est, err := estimator.EstimateForTicket(context.Background(), urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Position)

	est, err = estimator.EstimateForTicket(context.Background(), normalEarly.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, est.Position)

	est, err = estimator.EstimateForTicket(context.Background(), normalLate.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, est.Position)
	assert.Equal(t, 45.0, est.EstimatedWaitMinutes, "no history, so the configured default of 15 min applies")
}

func TestEstimate_PositionDropsWhenHeadLeaves(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"

	head := seedWaiting(t, ledger, &room, domain.TicketPriorityUrgent, clock.Now(), "tok-head")
	tail := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now().Add(time.Minute), "tok-tail")

	before, err := estimator.EstimateForTicket(context.Background(), tail.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, before.Position)

	physician := "dr-1"
	calledAt := clock.Now().Add(2 * time.Minute)
	_, err = ledger.Transition(context.Background(), head.ID, domain.TicketStatusWaiting, domain.TicketStatusInProgress, repository.TransitionFields{PhysicianRef: &physician, CalledAt: &calledAt})
	require.NoError(t, err)

	after, err := estimator.EstimateForTicket(context.Background(), tail.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Position, "position drops once the head is called")
}

func TestEstimate_NonWaitingTicketIsPositionZero(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Now())
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"

	ticket := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-a")
	physician := "dr-1"
	calledAt := clock.Now()
	_, err := ledger.Transition(context.Background(), ticket.ID, domain.TicketStatusWaiting, domain.TicketStatusInProgress, repository.TransitionFields{PhysicianRef: &physician, CalledAt: &calledAt})
	require.NoError(t, err)

	est, err := estimator.EstimateForTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, est.Position)
	assert.Equal(t, 0.0, est.EstimatedWaitMinutes)
}

func TestEstimateForNewTicket_Preview(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"

	seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now(), "tok-n")
	seedWaiting(t, ledger, &room, domain.TicketPriorityLow, clock.Now(), "tok-l")
	clock.Advance(time.Minute)

	est, err := estimator.EstimateForNewTicket(context.Background(), &room, domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Position, "a HIGH arrival jumps the NORMAL and LOW tickets")

	est, err = estimator.EstimateForNewTicket(context.Background(), &room, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, est.Position, "the existing NORMAL ticket was created earlier")
}

func TestEstimate_UsesRollingAverageWithRefresh(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"
	ctx := context.Background()

	completeVisit := func(tok string, minutes int) {
		ticket := seedWaiting(t, ledger, &room, domain.TicketPriorityNormal, clock.Now().Add(-time.Hour), tok)
		physician := "dr-1"
		calledAt := clock.Now().Add(-time.Duration(minutes) * time.Minute)
		completedAt := clock.Now()
		_, err := ledger.Transition(ctx, ticket.ID, domain.TicketStatusWaiting, domain.TicketStatusInProgress, repository.TransitionFields{PhysicianRef: &physician, CalledAt: &calledAt})
		require.NoError(t, err)
		_, err = ledger.Transition(ctx, ticket.ID, domain.TicketStatusInProgress, domain.TicketStatusCompleted, repository.TransitionFields{CompletedAt: &completedAt})
		require.NoError(t, err)
	}

	completeVisit("tok-v1", 10)
	completeVisit("tok-v2", 20)

	est, err := estimator.EstimateForNewTicket(ctx, &room, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Position)
	assert.InDelta(t, 15.0, est.EstimatedWaitMinutes, 0.01, "mean of the 10 and 20 minute visits")

	// New history inside the cache TTL is not visible yet.
	completeVisit("tok-v3", 60)
	est, err = estimator.EstimateForNewTicket(ctx, &room, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, est.EstimatedWaitMinutes, 0.01)

	// Past the TTL the average is recomputed from all three visits.
	clock.Advance(61 * time.Second)
	est, err = estimator.EstimateForNewTicket(ctx, &room, domain.TicketPriorityNormal)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, est.EstimatedWaitMinutes, 0.01)
}

func TestEstimate_GlobalLaneCountsAllRooms(t *testing.T) {
	ledger := repository.NewMemoryLedger()
	clock := newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	estimator := newTestEstimator(ledger, clock)
	room := "room-1"

	seedWaiting(t, ledger, &room, domain.TicketPriorityUrgent, clock.Now(), "tok-r")
	global := seedWaiting(t, ledger, nil, domain.TicketPriorityNormal, clock.Now().Add(time.Minute), "tok-g")

	est, err := estimator.EstimateForTicket(context.Background(), global.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, est.Position, "a global-lane ticket waits behind every room's earlier work")
}
