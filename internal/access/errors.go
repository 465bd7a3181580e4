package access

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRule        = errors.New("invalid rule")
	ErrExpired            = errors.New("link expired")
	ErrCredentialRequired = errors.New("credential required")
	ErrDenied             = errors.New("access denied")
)

// ErrHashedPasscode is returned when a passcode that would be stored as given
// parses as a password hash. Verification would treat it as one
var ErrHashedPasscode = fmt.Errorf("%w: passcode can't be a password hash", ErrInvalidRule)
