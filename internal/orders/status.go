package orders

var validNext = map[string]map[string]bool{
	StatusPending:         {StatusAwaitingPayment: true, StatusCancelled: true},
	StatusAwaitingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:            {StatusShipped: true, StatusRefunded: true},
	StatusShipped:         {StatusCompleted: true, StatusRefunded: true},
	StatusCompleted:       {StatusRefunded: true},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	return validNext[from][to]
}
