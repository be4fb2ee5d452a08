package types

// ValidateSessionName enforces the 1-200 character bound on session names.
func ValidateSessionName(name string) error {
	if name == "" || len(name) > 200 {
		return ErrInvalidSessionName
	}
	return nil
}

// ValidateSlotCount enforces the bound on anonymous student slots per
// session.
func ValidateSlotCount(count int) error {
	if count < 1 || count > 500 {
		return ErrInvalidSlotCount
	}
	return nil
}
