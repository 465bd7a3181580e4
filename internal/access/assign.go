package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/security"

	"go.uber.org/zap"
)

// Payload carries the rule specific input of SetRule
type Payload struct {
	Passcode string `json:"passcode"`
	Expiry   string `json:"expiry"`
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseExpiry accepts RFC 3339 timestamps and a few zone-less layouts which are
// read as UTC
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, l := range expiryLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unparseable expiry %q", ErrInvalidRule, s)
}

// SetRule replaces the rule of a file owned by callerID and returns the newly
// issued public link. Every previous link of the file stops resolving.
func (e *Engine) SetRule(ctx context.Context, fileID, callerID string, ruleType model.RuleType, p Payload) (string, error) {
	f, err := e.Files.ByID(ctx, fileID)
	if err != nil {
		return "", err
	}

	if f.UserID != callerID {
		return "", ErrForbidden
	}

	rule, err := e.buildRule(ruleType, p)
	if err != nil {
		return "", err
	}

	link := e.NewLink()
	Apply(f, rule, link)

	if err := e.Files.UpdateRule(ctx, f); err != nil {
		return "", err
	}

	zap.L().Debug("Access rule set",
		zap.String("fileID", f.ID),
		zap.String("ruleType", string(ruleType)),
		zap.Timep("expiresAt", f.ExpiresAt),
	)

	return link, nil
}

func (e *Engine) buildRule(t model.RuleType, p Payload) (Rule, error) {
	now := e.now()
	ceiling := now.Add(e.MaxValidity)

	switch t {
	case model.RulePasscode:
		if p.Passcode == "" {
			return nil, fmt.Errorf("%w: passcode is required", ErrInvalidRule)
		}

		secret := p.Passcode
		if e.Hasher == nil && security.IsHashed(secret) {
			return nil, ErrHashedPasscode
		}

		if e.Hasher != nil {
			h, err := e.Hasher.Hash(p.Passcode)
			if err != nil {
				return nil, fmt.Errorf("failed to hash passcode, %w", err)
			}
			secret = h
		}

		return Passcode{Secret: secret, ExpiresAt: ceiling}, nil
	case model.RuleExpiry:
		if p.Expiry == "" {
			return nil, fmt.Errorf("%w: expiry is required", ErrInvalidRule)
		}

		requested, err := ParseExpiry(p.Expiry)
		if err != nil {
			return nil, err
		}

		if requested.After(ceiling) {
			requested = ceiling
		}

		return Expiry{ExpiresAt: requested}, nil
	case model.RuleDefault:
		return Default{ExpiresAt: ceiling}, nil
	}

	return nil, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, t)
}
