package access

import (
	"context"
	"time"

	"bitwise74/share-api/internal/model"
)

// Resolution tells an anonymous caller what it has to do next with a link.
// It never carries the stored secret or the storage key.
type Resolution struct {
	RequiresCredential bool           `json:"requiresPasscode"`
	RuleType           model.RuleType `json:"ruleType"`
	Expiry             *time.Time     `json:"expiry"`
	Expired            bool           `json:"expired"`
}

// lookup finds the file behind link and rejects files without a usable rule or
// whose expiry has passed
func (e *Engine) lookup(ctx context.Context, link string) (*model.File, Rule, error) {
	if link == "" {
		return nil, nil, ErrNotFound
	}

	f, err := e.Files.ByLink(ctx, link)
	if err != nil {
		return nil, nil, err
	}

	rule := RuleOf(f)
	if _, ok := rule.(None); ok {
		return nil, nil, ErrNotFound
	}

	if f.Expired(e.now()) {
		return nil, nil, ErrExpired
	}

	return f, rule, nil
}

// Resolve looks up a public link and reports what a visitor must present to
// download the file. Links past their expiry return ErrExpired
func (e *Engine) Resolve(ctx context.Context, link string) (Resolution, error) {
	f, rule, err := e.lookup(ctx, link)
	if err != nil {
		return Resolution{}, err
	}

	_, open := rule.(Expiry)

	return Resolution{
		RequiresCredential: !open,
		RuleType:           rule.Type(),
		Expiry:             f.ExpiresAt,
	}, nil
}
