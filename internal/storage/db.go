package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"expensetrail/internal/models"
	"expensetrail/internal/validation"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when the users.email unique constraint rejects a write.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateUsername is returned when the users.username unique constraint rejects a write.
	ErrDuplicateUsername = errors.New("username already in use")
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			description TEXT NOT NULL,
			amount REAL NOT NULL,
			date TEXT,
			category TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// constraintError maps a sqlite unique-constraint violation to the matching
// duplicate sentinel. The constraint is the authoritative guard against
// concurrent registrations, so callers treat these the same as a pre-check
// duplicate. Any other error passes through unchanged.
func constraintError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}
	switch {
	case strings.Contains(se.Error(), "users.email"):
		return ErrDuplicateEmail
	case strings.Contains(se.Error(), "users.username"):
		return ErrDuplicateUsername
	}
	return err
}

// CreateUser creates a new user with the given email, username and password hash.
func (db *DB) CreateUser(email, username, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (email, username, password_hash) VALUES (?, ?, ?)",
		email, username, passwordHash,
	)
	if err != nil {
		return nil, constraintError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, email, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	))
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, email, username, password_hash, created_at FROM users WHERE email = ?",
		email,
	))
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, email, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	))
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateExpense validates and inserts a new expense, returning its ID. A nil
// date is stored as NULL. Validation failures perform no write.
func (db *DB) CreateExpense(description string, amount float64, date *string, category string) (int64, error) {
	var errs validation.Errors
	if strings.TrimSpace(description) == "" {
		errs.Add("description", "description is required")
	}
	if amount < 0 {
		errs.Add("amount", "amount must be non-negative")
	}
	if strings.TrimSpace(category) == "" {
		errs.Add("category", "category is required")
	}
	if len(errs) > 0 {
		return 0, errs
	}

	var dateValue any
	if date != nil {
		dateValue = *date
	}
	result, err := db.conn.Exec(
		"INSERT INTO expenses (description, amount, date, category) VALUES (?, ?, ?, ?)",
		description, amount, dateValue, category,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetExpense retrieves a single expense by ID.
func (db *DB) GetExpense(id int64) (*models.Expense, error) {
	row := db.conn.QueryRow(
		"SELECT id, description, amount, date, category, created_at FROM expenses WHERE id = ?",
		id,
	)

	var e models.Expense
	var date sql.NullString
	if err := row.Scan(&e.ID, &e.Description, &e.Amount, &date, &e.Category, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if date.Valid {
		e.Date = &date.String
	}
	return &e, nil
}

func (db *DB) queryExpenses(query string, args ...any) ([]models.Expense, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		var date sql.NullString
		if err := rows.Scan(&e.ID, &e.Description, &e.Amount, &date, &e.Category, &e.CreatedAt); err != nil {
			return nil, err
		}
		if date.Valid {
			d := date.String
			e.Date = &d
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// ListExpenses retrieves every expense.
func (db *DB) ListExpenses() ([]models.Expense, error) {
	return db.queryExpenses(
		"SELECT id, description, amount, date, category, created_at FROM expenses ORDER BY id",
	)
}

// ListExpensesByDate retrieves expenses whose date exactly equals the given
// YYYY-MM-DD value. Expenses stored without a date never match.
func (db *DB) ListExpensesByDate(date string) ([]models.Expense, error) {
	return db.queryExpenses(
		"SELECT id, description, amount, date, category, created_at FROM expenses WHERE date = ? ORDER BY id",
		date,
	)
}

// CategoryTotal holds aggregate spending for one category.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// CategoryTotalsByMonth returns per-category totals for dated expenses in the
// given month, highest total first.
func (db *DB) CategoryTotalsByMonth(year, month int) ([]CategoryTotal, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	rows, err := db.conn.Query(`
		SELECT category, SUM(amount), COUNT(*)
		FROM expenses
		WHERE date IS NOT NULL AND substr(date, 1, 7) = ?
		GROUP BY category
		ORDER BY SUM(amount) DESC
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}

	return totals, rows.Err()
}

// ExpensesByMonth returns dated expenses in the given month ordered by date.
func (db *DB) ExpensesByMonth(year, month int) ([]models.Expense, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	return db.queryExpenses(
		"SELECT id, description, amount, date, category, created_at FROM expenses WHERE date IS NOT NULL AND substr(date, 1, 7) = ? ORDER BY date",
		prefix,
	)
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt, time.Now(),
	)
	return err
}

// LookupSession returns the session and its user if the token exists and has
// not expired; otherwise ErrNotFound.
func (db *DB) LookupSession(token string) (*SessionInfo, error) {
	row := db.conn.QueryRow(`
		SELECT u.id, u.email, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now())

	var u models.User
	var lastActivity, expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now(), newExpiresAt, token,
	)
	return err
}

// DeleteSession removes a session by token. Deleting an absent session is not
// an error.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now())
	return err
}
