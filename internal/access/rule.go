package access

import (
	"time"

	"bitwise74/share-api/internal/model"
)

// Rule is one of Passcode, Expiry, Default or None. The set is closed, other
// packages can't add implementations
type Rule interface {
	Type() model.RuleType
	state() model.RuleState
}

// Passcode requires the caller to present Secret. Secret holds whatever is
// persisted, which is either the passcode as given or its hash
type Passcode struct {
	Secret    string
	ExpiresAt time.Time
}

// Expiry lets anyone holding the link download until ExpiresAt
type Expiry struct {
	ExpiresAt time.Time
}

// Default checks the caller against the owner's default download password
type Default struct {
	ExpiresAt time.Time
}

// None is the state of a freshly uploaded file
type None struct{}

func (Passcode) Type() model.RuleType { return model.RulePasscode }
func (Expiry) Type() model.RuleType   { return model.RuleExpiry }
func (Default) Type() model.RuleType  { return model.RuleDefault }
func (None) Type() model.RuleType     { return model.RuleNone }

func (r Passcode) state() model.RuleState {
	return model.RuleState{Type: model.RulePasscode, Passcode: &r.Secret, ExpiresAt: &r.ExpiresAt}
}

func (r Expiry) state() model.RuleState {
	return model.RuleState{Type: model.RuleExpiry, ExpiresAt: &r.ExpiresAt}
}

func (r Default) state() model.RuleState {
	return model.RuleState{Type: model.RuleDefault, ExpiresAt: &r.ExpiresAt}
}

func (None) state() model.RuleState {
	return model.RuleState{}
}

// RuleOf decodes the rule columns of f. Rows with an unknown rule type or a
// PASSCODE rule without a passcode decode as None
func RuleOf(f *model.File) Rule {
	var exp time.Time
	if f.ExpiresAt != nil {
		exp = *f.ExpiresAt
	}

	switch f.RuleType {
	case model.RulePasscode:
		if f.Passcode == nil {
			return None{}
		}
		return Passcode{Secret: *f.Passcode, ExpiresAt: exp}
	case model.RuleExpiry:
		return Expiry{ExpiresAt: exp}
	case model.RuleDefault:
		return Default{ExpiresAt: exp}
	}

	return None{}
}

// Apply writes r and the public link into every rule column of f
func Apply(f *model.File, r Rule, link string) {
	f.ApplyRule(r.state(), link)
}
