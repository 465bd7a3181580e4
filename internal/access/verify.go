package access

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/share-api/pkg/security"
)

// ContentRef points at the stored bytes of a file
type ContentRef struct {
	Key    string
	Name   string
	Size   int64
	Format string
}

// Authorization permits a single release of the referenced content
type Authorization struct {
	FileID  string
	Content ContentRef
}

// Verify checks credential against the rule behind link. Expiry is checked
// again because the rule may have changed since the link was resolved.
func (e *Engine) Verify(ctx context.Context, link, credential string) (Authorization, error) {
	f, rule, err := e.lookup(ctx, link)
	if err != nil {
		return Authorization{}, err
	}

	switch r := rule.(type) {
	case Expiry:
		// Anyone holding the link may download
	case Passcode:
		if credential == "" {
			return Authorization{}, ErrCredentialRequired
		}

		if err := e.match(credential, r.Secret); err != nil {
			return Authorization{}, err
		}
	case Default:
		if credential == "" {
			return Authorization{}, ErrCredentialRequired
		}

		secret, err := e.Accounts.DefaultSecret(ctx, f.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Authorization{}, ErrDenied
			}
			return Authorization{}, err
		}

		if secret == nil {
			return Authorization{}, ErrDenied
		}

		if err := e.match(credential, *secret); err != nil {
			return Authorization{}, err
		}
	}

	return Authorization{
		FileID: f.ID,
		Content: ContentRef{
			Key:    f.FileKey,
			Name:   f.OriginalName,
			Size:   f.Size,
			Format: f.Format,
		},
	}, nil
}

func (e *Engine) match(presented, stored string) error {
	if stored == "" {
		return ErrDenied
	}

	ok, err := e.Verifier.Matches(presented, stored)
	if err != nil {
		// A secret that can't be checked can't authorize anyone
		if errors.Is(err, security.ErrMalformedHash) {
			return ErrDenied
		}
		return fmt.Errorf("failed to verify credential, %w", err)
	}

	if !ok {
		return ErrDenied
	}

	return nil
}
