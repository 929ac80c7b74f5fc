package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TicketStatusWaiting, TicketStatusInProgress))
	assert.True(t, CanTransition(TicketStatusWaiting, TicketStatusExpired))
	assert.True(t, CanTransition(TicketStatusInProgress, TicketStatusCompleted))

	// Terminal states and regressions.
	assert.False(t, CanTransition(TicketStatusInProgress, TicketStatusWaiting))
	assert.False(t, CanTransition(TicketStatusInProgress, TicketStatusExpired))
	assert.False(t, CanTransition(TicketStatusCompleted, TicketStatusInProgress))
	assert.False(t, CanTransition(TicketStatusExpired, TicketStatusWaiting))
	assert.False(t, CanTransition(TicketStatusWaiting, TicketStatusCompleted))
}

func TestPriorityRanks(t *testing.T) {
	assert.Greater(t, TicketPriorityUrgent.Rank(), TicketPriorityHigh.Rank())
	assert.Greater(t, TicketPriorityHigh.Rank(), TicketPriorityNormal.Rank())
	assert.Greater(t, TicketPriorityNormal.Rank(), TicketPriorityLow.Rank())

	assert.True(t, TicketPriorityLow.Valid())
	assert.False(t, TicketPriority("CRITICAL").Valid())
	assert.False(t, TicketPriority("").Valid())
}

func TestCallsBefore(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	urgentLate := &QueueTicket{Priority: TicketPriorityUrgent, CreatedAt: base.Add(time.Hour)}
	normalEarly := &QueueTicket{Priority: TicketPriorityNormal, CreatedAt: base}
	normalLate := &QueueTicket{Priority: TicketPriorityNormal, CreatedAt: base.Add(time.Minute)}

	assert.True(t, CallsBefore(urgentLate, normalEarly), "priority beats arrival time")
	assert.True(t, CallsBefore(normalEarly, normalLate), "FIFO within a tier")
	assert.False(t, CallsBefore(normalLate, normalEarly))
}

func TestInLane(t *testing.T) {
	room := "room-1"
	roomTicket := &QueueTicket{RoomRef: &room}
	globalTicket := &QueueTicket{}

	assert.True(t, roomTicket.InLane("room-1"))
	assert.False(t, roomTicket.InLane("room-2"))
	assert.True(t, globalTicket.InLane("room-1"))
	assert.True(t, globalTicket.InLane("room-2"))
}
