package validators

import "errors"

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrPasswordEmpty    = errors.New("no password provided")
)

// bcrypt ignores everything past 72 bytes and older default passwords may
// still be checked with it, so the limit applies to every secret
const maxPasswordLen = 72

func PasswordValidator(p string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	if len(p) < 8 {
		return ErrPasswordTooShort
	}

	if len(p) > maxPasswordLen {
		return ErrPasswordTooLong
	}

	return nil
}

// PasscodeValidator checks secrets attached to a single file. These are shared
// out of band so only the upper bound is enforced
func PasscodeValidator(p string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	if len(p) > maxPasswordLen {
		return ErrPasswordTooLong
	}

	return nil
}
