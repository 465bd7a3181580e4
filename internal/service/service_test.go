package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"bitwise74/share-api/db"
	"bitwise74/share-api/internal/model"
	"bitwise74/share-api/internal/repository"
	"bitwise74/share-api/internal/storage"
	"bitwise74/share-api/pkg/security"
	"bitwise74/share-api/pkg/validators"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := db.Open("sqlite", "file::memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, _ := conn.DB()
		sqlDB.Close()
	})

	return conn
}

func createUser(t *testing.T, conn *gorm.DB, u model.User) {
	t.Helper()

	if u.Email == "" {
		u.Email = u.ID + "@example.com"
	}
	u.PasswordHash = "x"
	u.Stats = model.Stats{UserID: u.ID, MaxStorage: 100}

	require.NoError(t, conn.Create(&u).Error)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (m *recordingMailer) Send(msg *gomail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("smtp unavailable")
	}

	m.sent = append(m.sent, strings.Join(msg.GetHeader("To"), ","))
	return nil
}

func TestMailQueueRecordsStatus(t *testing.T) {
	tcs := []struct {
		name string
		fail bool
		want model.MailStatus
	}{
		{"delivered", false, model.MailSent},
		{"failed", true, model.MailError},
	}

	for _, c := range tcs {
		t.Run(c.name, func(t *testing.T) {
			conn := openDB(t)
			createUser(t, conn, model.User{ID: "u1"})

			mailer := &recordingMailer{fail: c.fail}
			q := NewMailQueue(mailer, conn, 4, 2)
			q.StartWorkerPool()

			tok := &model.VerificationToken{UserID: "u1", Token: "abc"}
			require.NoError(t, q.Enqueue(&MailJob{
				UserID:  "u1",
				Message: VerificationMessage("noreply@example.com", "u1@example.com", tok),
			}))
			q.Stop()

			var u model.User
			require.NoError(t, conn.First(&u, "id = ?", "u1").Error)
			assert.Equal(t, c.want, u.EmailDeliveryStatus)
			assert.NotNil(t, u.LastMailSentAt)

			if !c.fail {
				assert.Equal(t, []string{"u1@example.com"}, mailer.sent)
			}

			assert.ErrorIs(t, q.Enqueue(&MailJob{UserID: "u1"}), ErrQueueClosed)
		})
	}
}

func TestMailQueueFull(t *testing.T) {
	q := NewMailQueue(&recordingMailer{}, nil, 1, 1)

	require.NoError(t, q.Enqueue(&MailJob{UserID: "a"}))
	assert.ErrorIs(t, q.Enqueue(&MailJob{UserID: "b"}), ErrQueueFull)
}

func TestNewUserIsPending(t *testing.T) {
	conn := openDB(t)
	createUser(t, conn, model.User{ID: "u1"})

	var u model.User
	require.NoError(t, conn.First(&u, "id = ?", "u1").Error)
	assert.Equal(t, model.MailPending, u.EmailDeliveryStatus)
}

func TestVerificationMessage(t *testing.T) {
	m := VerificationMessage("from@example.com", "to@example.com", &model.VerificationToken{UserID: "u 1", Token: "t0k"})

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"to@example.com"}, m.GetHeader("To"))
	assert.Contains(t, buf.String(), "/verify?token=3Dt0k&user_id=3Du+1")
}

func TestAccountMessages(t *testing.T) {
	tok := &model.VerificationToken{UserID: "u1", Token: "chg"}

	change := EmailChangeMessage("from@example.com", "new@example.com", tok)
	reset := PasswordResetMessage("from@example.com", "to@example.com", "012345", 5*time.Minute)

	var buf bytes.Buffer
	_, err := change.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, change.GetHeader("To"))
	assert.Contains(t, buf.String(), "/verify?token=3Dchg&user_id=3Du1")

	buf.Reset()
	_, err = reset.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "012345")
	assert.Contains(t, buf.String(), "5 minutes")
}

func TestCleanupTokens(t *testing.T) {
	conn := openDB(t)
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tokens := []model.VerificationToken{
		{UserID: "u", Token: "expired-no-cleanup", ExpiresAt: past},
		{UserID: "u", Token: "expired-cleanup-later", ExpiresAt: past, CleanupAt: &future},
		{UserID: "u", Token: "cleanup-due", ExpiresAt: future, CleanupAt: &past},
		{UserID: "u", Token: "fresh", ExpiresAt: future},
	}
	require.NoError(t, conn.Create(&tokens).Error)

	n, err := cleanupTokens(context.Background(), conn, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var left []string
	require.NoError(t, conn.Model(&model.VerificationToken{}).Order("token").Pluck("token", &left).Error)
	assert.Equal(t, []string{"expired-cleanup-later", "fresh"}, left)
}

func TestCleanupAccounts(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	disk, err := storage.NewLocal(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	createUser(t, conn, model.User{ID: "stale", ExpiresAt: &past})
	createUser(t, conn, model.User{ID: "waiting", ExpiresAt: &future})
	createUser(t, conn, model.User{ID: "verified", Verified: true})

	for _, f := range []model.File{
		{ID: "f1", UserID: "stale", FileKey: "stale/a"},
		{ID: "f2", UserID: "waiting", FileKey: "waiting/b"},
	} {
		require.NoError(t, disk.Put(ctx, f.FileKey, strings.NewReader("x"), 1, ""))
		require.NoError(t, conn.Create(&f).Error)
	}

	n, err := cleanupAccounts(ctx, conn, disk, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var ids []string
	require.NoError(t, conn.Model(&model.User{}).Order("id").Pluck("id", &ids).Error)
	assert.Equal(t, []string{"verified", "waiting"}, ids)

	var files int64
	require.NoError(t, conn.Model(&model.File{}).Count(&files).Error)
	assert.Equal(t, int64(1), files)

	_, err = disk.Open(ctx, "stale/a")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	obj, err := disk.Open(ctx, "waiting/b")
	require.NoError(t, err)
	obj.Body.Close()

	n, err = cleanupAccounts(ctx, conn, disk, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrateSecrets(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	argon := &security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	verifier := security.NewCredentialVerifier(argon)

	plain := "userDefault123"
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacySecret"), bcrypt.MinCost)
	require.NoError(t, err)
	legacyStr := string(legacy)

	createUser(t, conn, model.User{ID: "plain", DefaultDownloadPassword: &plain})
	createUser(t, conn, model.User{ID: "bcrypt", DefaultDownloadPassword: &legacyStr})
	createUser(t, conn, model.User{ID: "none"})

	lookalike := "$2a$hunter22"
	createUser(t, conn, model.User{ID: "lookalike", DefaultDownloadPassword: &lookalike})

	code := "DemoPass456"
	require.NoError(t, conn.Create(&model.File{ID: "f1", UserID: "plain", FileKey: "k", RuleType: model.RulePasscode, Passcode: &code}).Error)

	report, err := MigrateSecrets(ctx, conn, argon, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.DefaultPasswords, "plain text shaped like a hash is migrated too")
	assert.Zero(t, report.Passcodes)

	users := repository.NewUsers(conn)

	got, err := users.DefaultSecret(ctx, "plain")
	require.NoError(t, err)
	assert.True(t, security.IsHashed(*got))
	ok, err := verifier.Matches("userDefault123", *got)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = users.DefaultSecret(ctx, "bcrypt")
	require.NoError(t, err)
	assert.Equal(t, legacyStr, *got, "bcrypt hashes are kept")

	got, err = users.DefaultSecret(ctx, "lookalike")
	require.NoError(t, err)
	assert.True(t, security.IsHashed(*got))
	ok, err = verifier.Matches(lookalike, *got)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = users.DefaultSecret(ctx, "none")
	require.NoError(t, err)
	assert.Nil(t, got)

	var f model.File
	require.NoError(t, conn.First(&f, "id = ?", "f1").Error)
	assert.Equal(t, "DemoPass456", *f.Passcode, "passcodes stay as given unless enabled")

	report, err = MigrateSecrets(ctx, conn, argon, true)
	require.NoError(t, err)
	assert.Zero(t, report.DefaultPasswords, "second run finds nothing to hash")
	assert.Equal(t, 1, report.Passcodes)

	require.NoError(t, conn.First(&f, "id = ?", "f1").Error)
	ok, err = verifier.Matches("DemoPass456", *f.Passcode)
	require.NoError(t, err)
	assert.True(t, ok)

	var names []string
	require.NoError(t, conn.Model(&model.Migration{}).Order("name").Pluck("name", &names).Error)
	assert.Equal(t, []string{migrationDefaultPasswords, migrationPasscodes}, names)

	var last model.Migration
	require.NoError(t, conn.First(&last, "name = ?", migrationDefaultPasswords).Error)
	assert.Zero(t, last.Rewritten, "latest run overwrites the count")
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func validFile(name, body, mime string) *validators.ValidFile {
	return &validators.ValidFile{
		File: memFile{bytes.NewReader([]byte(body))},
		Name: name,
		Size: int64(len(body)),
		Mime: mime,
	}
}

func TestUploader(t *testing.T) {
	conn := openDB(t)
	ctx := context.Background()
	createUser(t, conn, model.User{ID: "u1", Verified: true})

	disk, err := storage.NewLocal(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	files := repository.NewFiles(conn)
	users := repository.NewUsers(conn)
	up := NewUploader(disk, files, users)

	f, err := up.Do(ctx, "u1", validFile("a.txt", "first", "text/plain"))
	require.NoError(t, err)
	assert.Equal(t, model.RuleNone, f.RuleType)
	assert.Nil(t, f.PublicLink)
	assert.True(t, strings.HasPrefix(f.FileKey, "u1/"))

	obj, err := disk.Open(ctx, f.FileKey)
	require.NoError(t, err)
	body, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	assert.Equal(t, "first", string(body))

	_, err = up.Do(ctx, "u1", validFile("big.bin", strings.Repeat("x", 200), "application/octet-stream"))
	assert.ErrorIs(t, err, ErrNoSpace)

	link := "keep-me"
	exp := time.Now().Add(time.Hour)
	f.ApplyRule(model.RuleState{Type: model.RuleDefault, ExpiresAt: &exp}, link)
	require.NoError(t, files.UpdateRule(ctx, f))

	oldKey := f.FileKey
	require.NoError(t, up.Replace(ctx, f, validFile("b.txt", "second version", "text/plain")))

	_, err = disk.Open(ctx, oldKey)
	assert.ErrorIs(t, err, storage.ErrNotExist)

	stored, err := files.ByLink(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", stored.OriginalName)
	assert.Equal(t, f.FileKey, stored.FileKey)
	assert.Equal(t, model.RuleDefault, stored.RuleType)

	stats, err := users.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(len("second version")), stats.UsedStorage)

	require.NoError(t, up.Delete(ctx, stored))

	_, err = disk.Open(ctx, stored.FileKey)
	assert.ErrorIs(t, err, storage.ErrNotExist)

	stats, err = users.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats.UsedStorage)
	assert.Zero(t, stats.UploadedFiles)
}
