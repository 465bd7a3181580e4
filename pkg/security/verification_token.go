package security

import (
	"errors"
	"time"

	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/util"
)

const tokenSize = 32

type VerificationTokenOpts struct {
	UserID    string
	Purpose   string
	ExpiresAt *time.Time
	CleanupAt *time.Time
}

func MakeVerificationToken(o *VerificationTokenOpts) (*model.VerificationToken, error) {
	switch {
	case o == nil:
		return nil, errors.New("no token options provided")
	case o.UserID == "":
		return nil, errors.New("no user ID provided")
	case o.Purpose == "":
		return nil, errors.New("no token purpose provided")
	case o.ExpiresAt == nil:
		return nil, errors.New("no expiry provided")
	}

	token, err := util.GenerateToken(tokenSize)
	if err != nil {
		return nil, err
	}

	return &model.VerificationToken{
		UserID:    o.UserID,
		Token:     token,
		Purpose:   o.Purpose,
		ExpiresAt: *o.ExpiresAt,
		CreatedAt: time.Now(),
		CleanupAt: o.CleanupAt,
	}, nil
}
