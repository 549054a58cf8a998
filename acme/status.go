package acme

// Status represents the lifecycle state of an ACME order, authorization, or
// challenge. The vocabulary is closed; the storage layer rejects any other
// value.
type Status string

const (
	// StatusInvalid -- invalid; a resource that failed validation or expired.
	StatusInvalid = Status("invalid")
	// StatusPending -- pending; e.g. an order waiting for its authorizations.
	StatusPending = Status("pending")
	// StatusReady -- ready; e.g. an order that is ready to be finalized.
	StatusReady = Status("ready")
	// StatusProcessing -- processing; e.g. an order being finalized or a
	// challenge under validation.
	StatusProcessing = Status("processing")
	// StatusValid -- valid.
	StatusValid = Status("valid")
	// StatusExpired -- expired; a resource past its expiry timestamp.
	StatusExpired = Status("expired")
	// StatusDeactivated -- deactivated; e.g. an account or authorization
	// turned off by its owner.
	StatusDeactivated = Status("deactivated")
	// StatusRevoked -- revoked.
	StatusRevoked = Status("revoked")
)

// Statuses is the full vocabulary in registry order. Positions are
// significant: the persisted registry assigns identifier i+1 to Statuses[i],
// and that mapping never changes between releases.
var Statuses = []Status{
	StatusInvalid,
	StatusPending,
	StatusReady,
	StatusProcessing,
	StatusValid,
	StatusExpired,
	StatusDeactivated,
	StatusRevoked,
}

// IsValid reports whether s is a member of the registry vocabulary.
func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
