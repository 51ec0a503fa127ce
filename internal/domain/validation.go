package domain

// ValidationStatus is the terminal disposition of a candidate.
type ValidationStatus string

const (
	StatusApproved ValidationStatus = "approved"
	StatusPending  ValidationStatus = "pending"
	StatusRejected ValidationStatus = "rejected"
)

// Valid reports whether the status is one of the known values.
func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusPending, StatusRejected:
		return true
	}
	return false
}
