package auth

import (
	"testing"
	"time"

	"expensetrail/internal/session"
	"expensetrail/internal/storage"
	"expensetrail/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *session.Manager) {
	t.Helper()

	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create test database")
	t.Cleanup(func() { db.Close() })

	sessions := session.NewManager(session.NewMemoryStore(), 24*time.Hour)
	return NewService(db, sessions), sessions
}

func TestRegisterSuccess(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.Username)

	// Plaintext is never stored
	assert.NotEqual(t, "pw123", user.PasswordHash)
	assert.True(t, CheckPassword("pw123", user.PasswordHash))
}

func TestRegisterAggregatesValidationErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register("not-an-email", "bad name!", "")
	require.Error(t, err)

	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 3, "all failures should be reported at once")
	assert.True(t, errs.Has("email"))
	assert.True(t, errs.Has("username"))
	assert.True(t, errs.Has("password"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	_, err = svc.Register("alice@example.com", "alice2", "pw123")
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("email"))
	assert.False(t, errs.Has("username"))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	_, err = svc.Register("alice2@example.com", "alice", "pw123")
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("username"))
}

func TestRegisterValidatesUsername(t *testing.T) {
	svc, _ := newTestService(t)

	for _, username := range []string{"with space", "with-dash", "with.dot", ""} {
		_, err := svc.Register("user@example.com", username, "pw123")
		var errs validation.Errors
		require.ErrorAs(t, err, &errs, "username %q should be rejected", username)
		assert.True(t, errs.Has("username"))
	}

	_, err := svc.Register("user@example.com", "alice123", "pw123")
	assert.NoError(t, err)
}

func TestLoginSuccess(t *testing.T) {
	svc, sessions := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	token, expiresAt, err := svc.Login("alice@example.com", "pw123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	res, err := sessions.Resolve(token)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "alice", res.User.Username)
	assert.Empty(t, res.User.PasswordHash, "session state must not carry the hash")
}

func TestLoginConcurrentSessionsAllowed(t *testing.T) {
	svc, sessions := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	first, _, err := svc.Login("alice@example.com", "pw123")
	require.NoError(t, err)
	second, _, err := svc.Login("alice@example.com", "pw123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each login issues a fresh token")

	res, err := sessions.Resolve(first)
	require.NoError(t, err)
	assert.NotNil(t, res, "earlier sessions stay valid")
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	// Wrong password and unknown email fail identically
	_, _, wrongPassword := svc.Login("alice@example.com", "nope")
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)

	_, _, unknownEmail := svc.Login("bob@example.com", "pw123")
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)

	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogout(t *testing.T) {
	svc, sessions := newTestService(t)

	_, err := svc.Register("alice@example.com", "alice", "pw123")
	require.NoError(t, err)

	token, _, err := svc.Login("alice@example.com", "pw123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(token))

	res, err := sessions.Resolve(token)
	require.NoError(t, err)
	assert.Nil(t, res, "destroyed token should not resolve")

	// Logout is idempotent
	assert.NoError(t, svc.Logout(token))
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", hash)

	assert.True(t, CheckPassword("secret", hash))
	assert.False(t, CheckPassword("wrong", hash))

	// Salted: hashing the same password twice yields different digests
	hash2, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}
