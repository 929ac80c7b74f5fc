package domain

import "time"

// TicketStatus enumerates lifecycle states for queue tickets.
type TicketStatus string

const (
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusExpired    TicketStatus = "EXPIRED"
)

// TicketPriority enumerates clinical urgency tiers.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

var priorityRanks = map[TicketPriority]int{
	TicketPriorityLow:    0,
	TicketPriorityNormal: 1,
	TicketPriorityHigh:   2,
	TicketPriorityUrgent: 3,
}

// Rank returns the numeric ordering weight of a priority; higher serves first.
func (p TicketPriority) Rank() int {
	return priorityRanks[p]
}

// Valid reports whether the priority is one of the four tiers.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// QueueTicket is the aggregate for one patient's queued request.
// Tickets are created by the encounter-intake flow and afterwards mutated
// only through status transitions; they are never physically deleted.
type QueueTicket struct {
	ID              string
	EncounterRef    string
	RoomRef         *string
	PhysicianRef    *string
	Priority        TicketPriority
	Status          TicketStatus
	QueueNumber     int
	ValidationToken string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	CalledAt        *time.Time
	CompletedAt     *time.Time
	ExpiredAt       *time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusWaiting:    {TicketStatusInProgress, TicketStatusExpired},
	TicketStatusInProgress: {TicketStatusCompleted},
	TicketStatusCompleted:  {},
	TicketStatusExpired:    {},
}

// CanTransition reports whether the status move is permitted by the
// ticket state machine. COMPLETED and EXPIRED are terminal.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CallsBefore reports whether ticket a is selected before ticket b when
// calling the next patient: higher priority first, earliest creation wins
// ties within a tier.
func CallsBefore(a, b *QueueTicket) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// InLane reports whether the ticket is addressable to the given room.
// Tickets without a room sit on the global lane and are addressable
// to every room.
func (t *QueueTicket) InLane(roomRef string) bool {
	return t.RoomRef == nil || *t.RoomRef == roomRef
}
