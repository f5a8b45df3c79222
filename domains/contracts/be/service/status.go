package service

import "fmt"

// Status is the lifecycle state of a contract.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusApproved, StatusClosed, StatusCancelled, StatusExpired}

// ParseStatus converts a stored value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown contract status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusClosed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether a contract in this state blocks a new contract for the same property.
func (s Status) IsActive() bool {
	switch s {
	case StatusDraft, StatusApproved:
		return true
	case StatusClosed, StatusCancelled, StatusExpired:
		return false
	default:
		panic(fmt.Sprintf("contract status %q not handled", string(s)))
	}
}

// IsTerminal reports whether the property slot may be reused by a new contract.
func (s Status) IsTerminal() bool {
	return !s.IsActive()
}

func terminalStatuses() []string {
	out := make([]string, 0, len(Statuses))
	for _, s := range Statuses {
		if s.IsTerminal() {
			out = append(out, string(s))
		}
	}
	return out
}
