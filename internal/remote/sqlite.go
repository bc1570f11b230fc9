package remote

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/evolve/internal/game"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty database
// 1 - accounts, sessions, saves
const currentSchemaVersion = 1

// DefaultNickname is shown for players who never chose a nickname.
const DefaultNickname = "Player"

const maxNicknameRunes = 24

// SQLiteStore implements Store and Authenticator on one SQLite file.
type SQLiteStore struct {
	db         *sql.DB
	bcryptCost int
	now        func() time.Time
	defaults   game.State
}

var (
	_ Store         = (*SQLiteStore)(nil)
	_ Authenticator = (*SQLiteStore)(nil)
)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *SQLiteStore) { s.bcryptCost = cost }
}

// WithNow sets the time source for created_at columns.
func WithNow(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithDefaults sets the state fetched payloads are decoded over. Fields
// an older client never wrote keep these values.
func WithDefaults(s game.State) Option {
	return func(st *SQLiteStore) { st.defaults = s.Clone() }
}

// OpenSQLite creates or opens a remote store at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, bcryptCost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fetch implements Store.
func (s *SQLiteStore) Fetch(ctx context.Context, userID string) (*Record, error) {
	var (
		payload   []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, updated_at FROM saves WHERE user_id = ?`, userID,
	).Scan(&payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch save: %w", err)
	}

	st, err := decodePayload(payload, s.defaults)
	if err != nil {
		return nil, fmt.Errorf("fetch save: %w", err)
	}
	return &Record{State: st, UpdatedAt: time.UnixMilli(updatedAt).UTC()}, nil
}

// Upsert implements Store. The leaderboard columns are derived from the
// state in the same write.
func (s *SQLiteStore) Upsert(ctx context.Context, userID string, st game.State, updatedAt time.Time) error {
	payload, err := encodePayload(st)
	if err != nil {
		return fmt.Errorf("upsert save: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saves (user_id, payload, last_saved_ms, updated_at, level, energy, ascensions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			payload = excluded.payload,
			last_saved_ms = excluded.last_saved_ms,
			updated_at = excluded.updated_at,
			level = excluded.level,
			energy = excluded.energy,
			ascensions = excluded.ascensions
	`,
		userID,
		payload,
		st.LastSavedTime.UnixMilli(),
		updatedAt.UnixMilli(),
		st.CharacterLevel,
		st.Currency,
		st.PrestigeCount,
	)
	if err != nil {
		return fmt.Errorf("upsert save: %w", err)
	}
	return nil
}

// Leaderboard implements Store. Ties are broken by user id so the order
// is stable.
func (s *SQLiteStore) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(a.nickname, ''), s.ascensions, s.level, s.energy
		FROM saves s
		LEFT JOIN accounts a ON a.user_id = s.user_id
		ORDER BY s.ascensions DESC, s.level DESC, s.energy DESC, s.user_id ASC COLLATE BINARY
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Nickname, &e.Ascensions, &e.Level, &e.Energy); err != nil {
			return nil, fmt.Errorf("leaderboard: %w", err)
		}
		if e.Nickname == "" {
			e.Nickname = DefaultNickname
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// SignUp implements Authenticator. The new account is signed in.
func (s *SQLiteStore) SignUp(ctx context.Context, email, password, nickname string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("sign up: %w", err)
	}

	userID := uuid.Must(uuid.NewV7()).String()
	nickname = NormalizeNickname(nickname)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, email, password_hash, nickname, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, email, hash, nickname, s.now().UnixMilli())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return Session{}, ErrEmailTaken
		}
		return Session{}, fmt.Errorf("sign up: %w", err)
	}

	return s.newSession(ctx, Session{UserID: userID, Email: email, Nickname: nickname})
}

// SignIn implements Authenticator.
func (s *SQLiteStore) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)

	var (
		sess Session
		hash []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, nickname, password_hash FROM accounts WHERE email = ?
	`, email).Scan(&sess.UserID, &sess.Email, &sess.Nickname, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.newSession(ctx, sess)
}

// Resume implements Authenticator.
func (s *SQLiteStore) Resume(ctx context.Context, token string) (Session, error) {
	sess := Session{Token: token}
	err := s.db.QueryRowContext(ctx, `
		SELECT a.user_id, a.email, a.nickname
		FROM sessions t JOIN accounts a ON a.user_id = t.user_id
		WHERE t.token = ?
	`, token).Scan(&sess.UserID, &sess.Email, &sess.Nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotSignedIn
	}
	if err != nil {
		return Session{}, fmt.Errorf("resume session: %w", err)
	}
	return sess, nil
}

// SignOut implements Authenticator.
func (s *SQLiteStore) SignOut(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotSignedIn
	}
	return nil
}

func (s *SQLiteStore) newSession(ctx context.Context, sess Session) (Session, error) {
	sess.Token = uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)
	`, sess.Token, sess.UserID, s.now().UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// NormalizeNickname trims, NFC-normalises and truncates a nickname.
// Empty nicknames become DefaultNickname.
func NormalizeNickname(nickname string) string {
	n := norm.NFC.String(strings.TrimSpace(nickname))
	if r := []rune(n); len(r) > maxNicknameRunes {
		n = strings.TrimSpace(string(r[:maxNicknameRunes]))
	}
	if n == "" {
		return DefaultNickname
	}
	return n
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
