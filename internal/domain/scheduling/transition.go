package scheduling

// transitions lists the only legal status edges. Completed, Cancelled and
// Rescheduled have no outgoing edges.
var transitions = map[Status][]Status{
	StatusBooked:  {StatusOngoing, StatusCancelled, StatusRescheduled},
	StatusOngoing: {StatusCompleted},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(s Status) bool {
	return s.Valid() && len(transitions[s]) == 0
}
