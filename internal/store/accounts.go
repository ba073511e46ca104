package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/shared"
)

var (
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrContactExists is returned when adding a contact twice.
	ErrContactExists = errors.New("contact already added")
)

// Accounts is the persistence behind the development remote store.
type Accounts interface {
	// CreateUser inserts a user and returns its id, or ErrEmailTaken.
	CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error)

	// UserByEmail returns nil, nil if no account uses email.
	UserByEmail(ctx context.Context, email string) (*domain.User, error)

	CreateSession(ctx context.Context, token string, userID int64) error

	// SessionUser resolves a token. It returns nil, nil for unknown tokens.
	SessionUser(ctx context.Context, token string) (*domain.User, error)

	DeleteSession(ctx context.Context, token string) error

	// Touch marks the user online and records at as their last activity.
	Touch(ctx context.Context, userID int64, at time.Time) error

	SetOffline(ctx context.Context, userID int64) error

	// ExpirePresence marks offline every online user last seen before cutoff
	// and returns how many changed.
	ExpirePresence(ctx context.Context, cutoff time.Time) (int64, error)

	// AddContact links both users to each other, or returns ErrContactExists.
	AddContact(ctx context.Context, userID, contactID int64) error

	IsContact(ctx context.Context, userID, contactID int64) (bool, error)

	// Contacts lists userID's contacts with presence and the number of
	// unread messages each has sent to userID.
	Contacts(ctx context.Context, userID int64) ([]domain.Contact, error)

	// Messages returns the conversation between userID and contactID with id
	// greater than afterID, ascending. Incoming messages are marked read once
	// returned; the returned IsRead flags are the values before marking.
	Messages(ctx context.Context, userID, contactID, afterID int64) ([]domain.Message, error)

	// InsertMessage stores a message; a nil body is a buzz without text.
	InsertMessage(ctx context.Context, senderID, receiverID int64, body *string, buzz bool, at time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// AccountsSQLite implements Accounts using SQLite.
type AccountsSQLite struct {
	db *sql.DB
}

var _ Accounts = (*AccountsSQLite)(nil)

// NewAccountsSQLite opens (creating if needed) the remote store database.
func NewAccountsSQLite(dbPath string) (*AccountsSQLite, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	a := &AccountsSQLite{db: db}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return a, nil
}

func (a *AccountsSQLite) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		online INTEGER NOT NULL DEFAULT 0,
		last_seen_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contacts (
		user_id INTEGER NOT NULL,
		contact_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, contact_id)
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		message TEXT,
		is_buzz INTEGER NOT NULL DEFAULT 0,
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, id);
	CREATE INDEX IF NOT EXISTS idx_users_presence ON users(online, last_seen_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (a *AccountsSQLite) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database connection.
func (a *AccountsSQLite) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (a *AccountsSQLite) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withRetry(ctx, op, func() error {
		var err error
		res, err = a.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// CreateUser inserts a new account.
func (a *AccountsSQLite) CreateUser(ctx context.Context, name, email, passwordHash string) (int64, error) {
	res, err := a.exec(ctx, "create user",
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, time.Now().Unix())
	if shared.IsSQLiteUniqueError(err) {
		return 0, ErrEmailTaken
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const userColumns = `u.id, u.name, u.email, u.password_hash, u.online, u.last_seen_at, u.created_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u        domain.User
		online   int
		lastSeen int64
		created  int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &online, &lastSeen, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Online = online != 0
	if lastSeen > 0 {
		u.LastSeenAt = time.Unix(lastSeen, 0)
	}
	u.CreatedAt = time.Unix(created, 0)
	return &u, nil
}

// UserByEmail looks an account up by email, ignoring case.
func (a *AccountsSQLite) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(a.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.email = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// CreateSession stores a login token.
func (a *AccountsSQLite) CreateSession(ctx context.Context, token string, userID int64) error {
	_, err := a.exec(ctx, "create session",
		`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().Unix())
	return err
}

// SessionUser resolves a login token to its account.
func (a *AccountsSQLite) SessionUser(ctx context.Context, token string) (*domain.User, error) {
	u, err := scanUser(a.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM sessions s JOIN users u ON u.id = s.user_id WHERE s.token = ?`, token))
	if err != nil {
		return nil, fmt.Errorf("get session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a login token.
func (a *AccountsSQLite) DeleteSession(ctx context.Context, token string) error {
	_, err := a.exec(ctx, "delete session", `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// Touch records activity for userID.
func (a *AccountsSQLite) Touch(ctx context.Context, userID int64, at time.Time) error {
	_, err := a.exec(ctx, "touch user",
		`UPDATE users SET online = 1, last_seen_at = ? WHERE id = ?`, at.Unix(), userID)
	return err
}

// SetOffline marks userID offline.
func (a *AccountsSQLite) SetOffline(ctx context.Context, userID int64) error {
	_, err := a.exec(ctx, "set offline", `UPDATE users SET online = 0 WHERE id = ?`, userID)
	return err
}

// ExpirePresence marks idle users offline.
func (a *AccountsSQLite) ExpirePresence(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.exec(ctx, "expire presence",
		`UPDATE users SET online = 0 WHERE online = 1 AND last_seen_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddContact links userID and contactID in both directions.
func (a *AccountsSQLite) AddContact(ctx context.Context, userID, contactID int64) error {
	return withRetry(ctx, "add contact", func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().Unix()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contacts (user_id, contact_id, created_at) VALUES (?, ?, ?)`,
			userID, contactID, now); err != nil {
			if shared.IsSQLiteUniqueError(err) {
				return ErrContactExists
			}
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO contacts (user_id, contact_id, created_at) VALUES (?, ?, ?)`,
			contactID, userID, now); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// IsContact reports whether contactID is on userID's list.
func (a *AccountsSQLite) IsContact(ctx context.Context, userID, contactID int64) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND contact_id = ?`, userID, contactID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check contact: %w", err)
	}
	return n > 0, nil
}

// Contacts lists userID's contacts ordered by name.
func (a *AccountsSQLite) Contacts(ctx context.Context, userID int64) ([]domain.Contact, error) {
	rows, err := a.db.QueryContext(ctx, `
	SELECT u.id, u.name, u.online,
		(SELECT COUNT(*) FROM messages m
		 WHERE m.sender_id = u.id AND m.receiver_id = c.user_id AND m.is_read = 0)
	FROM contacts c JOIN users u ON u.id = c.contact_id
	WHERE c.user_id = ?
	ORDER BY u.name COLLATE NOCASE`, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close contact rows", "error", closeErr)
		}
	}()

	contacts := []domain.Contact{}
	for rows.Next() {
		var (
			u      domain.User
			online int
			unread int
		)
		if err := rows.Scan(&u.ID, &u.Name, &online, &unread); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		u.Online = online != 0
		contacts = append(contacts, u.AsContact(unread))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

// Messages returns the conversation tail after afterID and marks the
// incoming part of it read.
func (a *AccountsSQLite) Messages(ctx context.Context, userID, contactID, afterID int64) ([]domain.Message, error) {
	rows, err := a.db.QueryContext(ctx, `
	SELECT m.id, u.name, m.message, m.created_at, m.sender_id, m.is_buzz, m.is_read
	FROM messages m JOIN users u ON u.id = m.sender_id
	WHERE ((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))
		AND m.id > ?
	ORDER BY m.id`, userID, contactID, contactID, userID, afterID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	msgs := []domain.Message{}
	var lastIncoming int64
	for rows.Next() {
		var (
			m        domain.Message
			body     sql.NullString
			senderID int64
			buzz     int
			read     int
		)
		if err := rows.Scan(&m.ID, &m.SenderName, &body, &m.CreatedRaw, &senderID, &buzz, &read); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if body.Valid {
			text := body.String
			m.Body = &text
		}
		m.CreatedAt = domain.ParseTimestamp(m.CreatedRaw)
		m.IsMine = senderID == userID
		m.IsBuzz = buzz != 0
		m.IsRead = read != 0
		if !m.IsMine && !m.IsRead {
			lastIncoming = m.ID
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if lastIncoming > 0 {
		if _, err := a.exec(ctx, "mark read",
			`UPDATE messages SET is_read = 1
			 WHERE sender_id = ? AND receiver_id = ? AND id <= ? AND is_read = 0`,
			contactID, userID, lastIncoming); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// InsertMessage stores a message and returns its id.
func (a *AccountsSQLite) InsertMessage(ctx context.Context, senderID, receiverID int64, body *string, buzz bool, at time.Time) (int64, error) {
	var text sql.NullString
	if body != nil {
		text = sql.NullString{String: *body, Valid: true}
	}
	isBuzz := 0
	if buzz {
		isBuzz = 1
	}
	res, err := a.exec(ctx, "insert message",
		`INSERT INTO messages (sender_id, receiver_id, message, is_buzz, created_at) VALUES (?, ?, ?, ?, ?)`,
		senderID, receiverID, text, isBuzz, at.Local().Format(domain.TimestampLayout))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
