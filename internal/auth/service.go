// Package auth orchestrates registration, login and logout over the
// credential store and the session manager.
package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"expensetrail/internal/models"
	"expensetrail/internal/session"
	"expensetrail/internal/storage"
	"expensetrail/internal/validation"
)

// ErrInvalidCredentials is returned for both an unknown email and a password
// mismatch, so a login failure never reveals which field was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service implements the authentication flows.
type Service struct {
	db       *storage.DB
	sessions *session.Manager
}

// NewService creates a Service over the given store and session manager.
func NewService(db *storage.DB, sessions *session.Manager) *Service {
	return &Service{db: db, sessions: sessions}
}

// Register validates the input, hashes the password and persists the new
// user. Every validation failure is collected into one validation.Errors
// value; nothing is written unless all checks pass. A unique-constraint
// violation at insert time is reported the same way as a pre-check duplicate.
func (s *Service) Register(email, username, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)

	var errs validation.Errors
	if !validEmail(email) {
		errs.Add("email", "provide a valid email address")
	}
	if !validUsername(username) {
		errs.Add("username", "username must be alphanumeric")
	}
	if password == "" {
		errs.Add("password", "password is required")
	}

	if !errs.Has("email") {
		if _, err := s.db.GetUserByEmail(email); err == nil {
			errs.Add("email", storage.ErrDuplicateEmail.Error())
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	}
	if !errs.Has("username") {
		if _, err := s.db.GetUserByUsername(username); err == nil {
			errs.Add("username", storage.ErrDuplicateUsername.Error())
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("check username: %w", err)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.db.CreateUser(email, username, hash)
	if err != nil {
		// The unique constraints are the authoritative guard against a
		// concurrent registration slipping past the pre-checks above.
		switch {
		case errors.Is(err, storage.ErrDuplicateEmail):
			errs.Add("email", storage.ErrDuplicateEmail.Error())
			return nil, errs
		case errors.Is(err, storage.ErrDuplicateUsername):
			errs.Add("username", storage.ErrDuplicateUsername.Error())
			return nil, errs
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and creates a new session. Prior sessions
// for the same user stay valid.
func (s *Service) Login(email, password string) (string, time.Time, error) {
	user, err := s.db.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, ErrInvalidCredentials
		}
		return "", time.Time{}, fmt.Errorf("lookup user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return s.sessions.Create(user)
}

// Logout destroys the session. Logging out an already-absent session succeeds.
func (s *Service) Logout(token string) error {
	return s.sessions.Destroy(token)
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
