package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFiles struct {
	mu    sync.Mutex
	files map[string]model.File
}

func (m *memFiles) ByID(_ context.Context, id string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (m *memFiles) ByLink(_ context.Context, link string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.PublicLink != nil && *f.PublicLink == link {
			return &f, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memFiles) UpdateRule(_ context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.files[f.ID]
	if !ok || stored.UserID != f.UserID {
		return ErrNotFound
	}

	stored.ApplyRule(f.Rule(), *f.PublicLink)
	m.files[f.ID] = stored
	return nil
}

type memAccounts map[string]*string

func (m memAccounts) DefaultSecret(_ context.Context, userID string) (*string, error) {
	s, ok := m[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

type brokenAccounts struct{}

func (brokenAccounts) DefaultSecret(context.Context, string) (*string, error) {
	return nil, errors.New("connection reset")
}

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *Engine
	files    *memFiles
	accounts memAccounts
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	argon := &security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hash, err := argon.Hash("userDefault123")
	require.NoError(t, err)

	fx := &fixture{
		files: &memFiles{files: map[string]model.File{
			"f1": {ID: "f1", UserID: "owner", FileKey: "objects/f1", OriginalName: "report.pdf", Size: 2048, Format: "application/pdf"},
			"f2": {ID: "f2", UserID: "nosecret", FileKey: "objects/f2"},
			"f3": {ID: "f3", UserID: "ghost", FileKey: "objects/f3"},
		}},
		accounts: memAccounts{
			"owner":    &hash,
			"nosecret": nil,
		},
		clock: t0,
	}

	n := 0
	fx.engine = New(fx.files, fx.accounts, security.NewCredentialVerifier(argon), 24*time.Hour)
	fx.engine.Now = func() time.Time { return fx.clock }
	fx.engine.NewLink = func() string {
		n++
		return fmt.Sprintf("link-%d", n)
	}

	return fx
}

func (fx *fixture) file(id string) model.File {
	return fx.files.files[id]
}

func TestSetRuleFailures(t *testing.T) {
	tcs := []struct {
		name     string
		fileID   string
		caller   string
		ruleType model.RuleType
		payload  Payload
		want     error
	}{
		{"unknown file", "missing", "owner", model.RuleDefault, Payload{}, ErrNotFound},
		{"wrong owner", "f1", "intruder", model.RuleDefault, Payload{}, ErrForbidden},
		{"unknown rule type", "f1", "owner", "PUBLIC", Payload{}, ErrInvalidRule},
		{"rule type is case sensitive", "f1", "owner", "passcode", Payload{Passcode: "x"}, ErrInvalidRule},
		{"none is not assignable", "f1", "owner", model.RuleNone, Payload{}, ErrInvalidRule},
		{"passcode without passcode", "f1", "owner", model.RulePasscode, Payload{}, ErrInvalidRule},
		{"expiry without date", "f1", "owner", model.RuleExpiry, Payload{}, ErrInvalidRule},
		{"expiry with garbage", "f1", "owner", model.RuleExpiry, Payload{Expiry: "next tuesday"}, ErrInvalidRule},
	}

	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			fx := newFixture(t)

			link, err := fx.engine.SetRule(context.Background(), c.fileID, c.caller, c.ruleType, c.payload)
			assert.ErrorIs(t, err, c.want)
			assert.Empty(t, link)

			if f, ok := fx.files.files[c.fileID]; ok {
				assert.Equal(t, model.RuleNone, f.RuleType, "failed assignment must not touch the record")
				assert.Nil(t, f.PublicLink)
			}
		})
	}
}

func TestSetRulePasscode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)
	assert.Equal(t, "link-1", link)

	f := fx.file("f1")
	assert.Equal(t, model.RulePasscode, f.RuleType)
	require.NotNil(t, f.Passcode)
	assert.Equal(t, "DemoPass456", *f.Passcode)
	assert.Equal(t, t0.Add(24*time.Hour), *f.ExpiresAt)
	assert.Equal(t, "link-1", *f.PublicLink)
}

func TestSetRulePasscodeHashed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.engine.Hasher = &security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)

	f := fx.file("f1")
	assert.True(t, security.IsHashed(*f.Passcode))
	assert.NotContains(t, *f.Passcode, "DemoPass456")

	_, err = fx.engine.Verify(ctx, link, "DemoPass456")
	assert.NoError(t, err)

	_, err = fx.engine.Verify(ctx, link, "wrong")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestSetRuleExpiryCap(t *testing.T) {
	tcs := []struct {
		name    string
		expiry  string
		maxVal  time.Duration
		wantExp time.Time
	}{
		{"ten hours is not capped", t0.Add(10 * time.Hour).Format(time.RFC3339), 24 * time.Hour, t0.Add(10 * time.Hour)},
		{"cap wins for long requests", t0.Add(72 * time.Hour).Format(time.RFC3339), 24 * time.Hour, t0.Add(24 * time.Hour)},
		{"smaller cap", t0.Add(10 * time.Hour).Format(time.RFC3339), time.Hour, t0.Add(time.Hour)},
		{"exactly the cap", t0.Add(24 * time.Hour).Format(time.RFC3339), 24 * time.Hour, t0.Add(24 * time.Hour)},
		{"past date is accepted", t0.Add(-time.Hour).Format(time.RFC3339), 24 * time.Hour, t0.Add(-time.Hour)},
		{"zone offset normalised", "2025-03-14T12:00:00+02:00", 24 * time.Hour, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)},
		{"fractional seconds", "2025-03-14T10:00:00.000Z", 24 * time.Hour, t0.Add(time.Hour)},
		{"zone-less timestamp is UTC", "2025-03-14T11:30:00", 24 * time.Hour, t0.Add(150 * time.Minute)},
		{"date only", "2025-03-15", 24 * time.Hour, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.engine.MaxValidity = c.maxVal

			_, err := fx.engine.SetRule(context.Background(), "f1", "owner", model.RuleExpiry, Payload{Expiry: c.expiry})
			require.NoError(t, err)

			f := fx.file("f1")
			assert.Equal(t, model.RuleExpiry, f.RuleType)
			assert.Nil(t, f.Passcode)
			assert.True(t, c.wantExp.Equal(*f.ExpiresAt), "got %s want %s", f.ExpiresAt, c.wantExp)
		})
	}
}

func TestRuleSwitchingClearsPayload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)

	fx.clock = t0.Add(time.Minute)
	second, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleExpiry, Payload{Expiry: t0.Add(2 * time.Hour).Format(time.RFC3339)})
	require.NoError(t, err)

	f := fx.file("f1")
	assert.Equal(t, model.RuleExpiry, f.RuleType)
	assert.Nil(t, f.Passcode, "passcode must not survive into an EXPIRY rule")
	assert.Equal(t, t0.Add(2*time.Hour), *f.ExpiresAt)

	third, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{Passcode: "ignored"})
	require.NoError(t, err)

	f = fx.file("f1")
	assert.Equal(t, model.RuleDefault, f.RuleType)
	assert.Nil(t, f.Passcode)
	assert.Equal(t, fx.clock.Add(24*time.Hour), *f.ExpiresAt)

	for _, stale := range []string{first, second} {
		_, err := fx.engine.Resolve(ctx, stale)
		assert.ErrorIs(t, err, ErrNotFound, stale)

		_, err = fx.engine.Verify(ctx, stale, "DemoPass456")
		assert.ErrorIs(t, err, ErrNotFound, stale)
	}

	res, err := fx.engine.Resolve(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, model.RuleDefault, res.RuleType)
}

func TestSameRuleIssuesNewLink(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{})
	require.NoError(t, err)
	b, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	_, err = fx.engine.Resolve(ctx, a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	passLink, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)
	expLink, err := fx.engine.SetRule(ctx, "f2", "nosecret", model.RuleExpiry, Payload{Expiry: t0.Add(time.Hour).Format(time.RFC3339)})
	require.NoError(t, err)
	defLink, err := fx.engine.SetRule(ctx, "f3", "ghost", model.RuleDefault, Payload{})
	require.NoError(t, err)

	tcs := []struct {
		name     string
		link     string
		wantCred bool
		wantType model.RuleType
	}{
		{"passcode", passLink, true, model.RulePasscode},
		{"expiry", expLink, false, model.RuleExpiry},
		{"default", defLink, true, model.RuleDefault},
	}

	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			res, err := fx.engine.Resolve(ctx, c.link)
			require.NoError(t, err)

			assert.Equal(t, c.wantCred, res.RequiresCredential)
			assert.Equal(t, c.wantType, res.RuleType)
			assert.False(t, res.Expired)
			assert.NotNil(t, res.Expiry)
		})
	}

	_, err = fx.engine.Resolve(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fx.engine.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredLinks(t *testing.T) {
	for _, rt := range []model.RuleType{model.RulePasscode, model.RuleExpiry, model.RuleDefault} {
		t.Run(string(rt), func(t *testing.T) {
			fx := newFixture(t)
			ctx := context.Background()

			link, err := fx.engine.SetRule(ctx, "f1", "owner", rt, Payload{
				Passcode: "DemoPass456",
				Expiry:   t0.Add(time.Hour).Format(time.RFC3339),
			})
			require.NoError(t, err)

			fx.clock = t0.Add(25 * time.Hour)

			_, err = fx.engine.Resolve(ctx, link)
			assert.ErrorIs(t, err, ErrExpired)

			_, err = fx.engine.Verify(ctx, link, "DemoPass456")
			assert.ErrorIs(t, err, ErrExpired)

			_, err = fx.engine.Verify(ctx, link, "userDefault123")
			assert.ErrorIs(t, err, ErrExpired)
		})
	}
}

func TestPastExpiryIsImmediatelyExpired(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleExpiry, Payload{Expiry: t0.Add(-time.Minute).Format(time.RFC3339)})
	require.NoError(t, err)

	_, err = fx.engine.Resolve(ctx, link)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyPasscode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)

	_, err = fx.engine.Verify(ctx, link, "wrong")
	assert.ErrorIs(t, err, ErrDenied)

	_, err = fx.engine.Verify(ctx, link, "")
	assert.ErrorIs(t, err, ErrCredentialRequired)

	auth, err := fx.engine.Verify(ctx, link, "DemoPass456")
	require.NoError(t, err)
	assert.Equal(t, Authorization{
		FileID: "f1",
		Content: ContentRef{
			Key:    "objects/f1",
			Name:   "report.pdf",
			Size:   2048,
			Format: "application/pdf",
		},
	}, auth)
}

func TestVerifyLegacyPlaintextPasscode(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	secret := "legacy-code"
	link := "old-link"
	exp := t0.Add(time.Hour)
	f := fx.files.files["f1"]
	f.RuleType, f.Passcode, f.ExpiresAt, f.PublicLink = model.RulePasscode, &secret, &exp, &link
	fx.files.files["f1"] = f

	_, err := fx.engine.Verify(ctx, link, "legacy-code")
	assert.NoError(t, err)
}

type failingMatcher struct {
	err error
}

func (m failingMatcher) Matches(string, string) (bool, error) {
	return false, m.err
}

func TestPasscodeLookingLikeHash(t *testing.T) {
	ctx := context.Background()

	for _, code := range []string{"$argon2id$hunter2", "$2a$hunter22", "$2b$10$abcdefghijklmnopqrstuv"} {
		t.Run(code, func(t *testing.T) {
			fx := newFixture(t)

			link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: code})
			require.NoError(t, err)

			_, err = fx.engine.Verify(ctx, link, code)
			assert.NoError(t, err)

			_, err = fx.engine.Verify(ctx, link, "wrong")
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestPasscodeThatIsAHash(t *testing.T) {
	ctx := context.Background()
	argon := &security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	hash, err := argon.Hash("something")
	require.NoError(t, err)

	fx := newFixture(t)
	_, err = fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: hash})
	assert.ErrorIs(t, err, ErrHashedPasscode)
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, model.RuleNone, fx.file("f1").RuleType)

	// Hashed again before storage, so nothing is ambiguous
	fx.engine.Hasher = argon
	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: hash})
	require.NoError(t, err)

	_, err = fx.engine.Verify(ctx, link, hash)
	assert.NoError(t, err)
}

func TestLegacyDefaultPasswordLookingLikeHash(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	legacy := "$2y$notreallybcrypt"
	fx.accounts["owner"] = &legacy

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{})
	require.NoError(t, err)

	_, err = fx.engine.Verify(ctx, link, legacy)
	assert.NoError(t, err)
}

func TestMalformedHashDenies(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RulePasscode, Payload{Passcode: "DemoPass456"})
	require.NoError(t, err)

	fx.engine.Verifier = failingMatcher{err: fmt.Errorf("wrapped, %w", security.ErrMalformedHash)}
	_, err = fx.engine.Verify(ctx, link, "DemoPass456")
	assert.ErrorIs(t, err, ErrDenied)

	fx.engine.Verifier = failingMatcher{err: errors.New("out of memory")}
	_, err = fx.engine.Verify(ctx, link, "DemoPass456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenied)
}

func TestVerifyExpiryIgnoresCredential(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleExpiry, Payload{Expiry: t0.Add(time.Hour).Format(time.RFC3339)})
	require.NoError(t, err)

	res, err := fx.engine.Resolve(ctx, link)
	require.NoError(t, err)
	assert.False(t, res.RequiresCredential)

	for _, cred := range []string{"", "anything"} {
		auth, err := fx.engine.Verify(ctx, link, cred)
		require.NoError(t, err)
		assert.Equal(t, "f1", auth.FileID)
	}
}

func TestVerifyDefault(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ownerLink, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{})
	require.NoError(t, err)
	noSecretLink, err := fx.engine.SetRule(ctx, "f2", "nosecret", model.RuleDefault, Payload{})
	require.NoError(t, err)
	ghostLink, err := fx.engine.SetRule(ctx, "f3", "ghost", model.RuleDefault, Payload{})
	require.NoError(t, err)

	tcs := []struct {
		name string
		link string
		cred string
		want error
	}{
		{"wrong password", ownerLink, "wrong", ErrDenied},
		{"right password", ownerLink, "userDefault123", nil},
		{"missing credential", ownerLink, "", ErrCredentialRequired},
		{"owner without default password", noSecretLink, "userDefault123", ErrDenied},
		{"owner account gone", ghostLink, "userDefault123", ErrDenied},
	}

	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			_, err := fx.engine.Verify(ctx, c.link, c.cred)
			if c.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.want)
		})
	}
}

func TestVerifyDefaultAccountLookupFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	link, err := fx.engine.SetRule(ctx, "f1", "owner", model.RuleDefault, Payload{})
	require.NoError(t, err)

	fx.engine.Accounts = brokenAccounts{}

	_, err = fx.engine.Verify(ctx, link, "userDefault123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenied)
}

func TestVerifyNoneRule(t *testing.T) {
	fx := newFixture(t)

	link := "dangling"
	f := fx.files.files["f1"]
	f.PublicLink = &link
	fx.files.files["f1"] = f

	_, err := fx.engine.Verify(context.Background(), link, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleOf(t *testing.T) {
	exp := t0
	secret := "s"

	assert.Equal(t, None{}, RuleOf(&model.File{}))
	assert.Equal(t, None{}, RuleOf(&model.File{RuleType: model.RulePasscode}))
	assert.Equal(t, Passcode{Secret: "s", ExpiresAt: exp}, RuleOf(&model.File{RuleType: model.RulePasscode, Passcode: &secret, ExpiresAt: &exp}))
	assert.Equal(t, Expiry{ExpiresAt: exp}, RuleOf(&model.File{RuleType: model.RuleExpiry, ExpiresAt: &exp}))
	assert.Equal(t, Default{ExpiresAt: exp}, RuleOf(&model.File{RuleType: model.RuleDefault, ExpiresAt: &exp}))
	assert.Equal(t, None{}, RuleOf(&model.File{RuleType: "BOGUS"}))
}
