package domain

// PaymentStatus is the lifecycle tag of a session's payment sub-document.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"    // Initial, nothing requested from the gateway
	StatusProcessing PaymentStatus = "processing" // Link or intent created, waiting for confirmation
	StatusCompleted  PaymentStatus = "completed"  // Confirmed; terminal for this payment cycle
)

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted:
		return true
	}
	return false
}

// rank orders statuses along the only legal path.
func (s PaymentStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// Next returns the single allowed successor, or false for the terminal status.
func (s PaymentStatus) Next() (PaymentStatus, bool) {
	switch s {
	case StatusPending:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusCompleted, true
	}
	return "", false
}

// Terminal reports whether no further transition exists.
func (s PaymentStatus) Terminal() bool {
	return s == StatusCompleted
}

// CanTransition reports whether from -> to is a legal edge.
// Self-transitions are allowed; everything else must be the single successor.
func CanTransition(from, to PaymentStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// CheckTransition returns a *TransitionError when from -> to is not legal.
func CheckTransition(from, to PaymentStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}

// Less orders statuses as pending < processing < completed.
func (s PaymentStatus) Less(other PaymentStatus) bool {
	return s.rank() < other.rank()
}
