package user

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines user data operations. Lookups are keyed by the
// normalized E.164 phone number, which is unique.
type Repository interface {
	// GetByPhone retrieves a user by normalized phone number.
	// Returns ErrUserNotFound when no such user exists.
	GetByPhone(ctx context.Context, phone string) (*User, error)

	// GetByID retrieves a user by ID.
	// Returns ErrUserNotFound when no such user exists.
	GetByID(ctx context.Context, id string) (*User, error)

	// Upsert creates the user for a phone number if absent and returns the
	// stored record. An existing user is returned unchanged.
	Upsert(ctx context.Context, phone string) (*User, error)

	// MarkVerified sets the verified flag for a phone number.
	MarkVerified(ctx context.Context, phone string) error

	// SetVerificationSID records the in-flight Twilio verification SID.
	SetVerificationSID(ctx context.Context, phone, sid string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User // phone -> User
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]*User)}
}

// GetByPhone retrieves a user by normalized phone number.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[phone]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// GetByID retrieves a user by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ID == id {
			userCopy := *u
			return &userCopy, nil
		}
	}
	return nil, ErrUserNotFound
}

// Upsert creates the user for a phone number if absent.
func (r *InMemoryRepository) Upsert(ctx context.Context, phone string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.users[phone]; ok {
		userCopy := *existing
		return &userCopy, nil
	}

	now := time.Now()
	u := &User{
		ID:          uuid.New().String(),
		Phone:       phone,
		Verified:    false,
		AccountType: AccountFree,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.users[phone] = u
	userCopy := *u
	return &userCopy, nil
}

// MarkVerified sets the verified flag for a phone number.
func (r *InMemoryRepository) MarkVerified(ctx context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[phone]
	if !ok {
		return ErrUserNotFound
	}
	u.Verified = true
	u.UpdatedAt = time.Now()
	return nil
}

// SetVerificationSID records the in-flight Twilio verification SID.
func (r *InMemoryRepository) SetVerificationSID(ctx context.Context, phone, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[phone]
	if !ok {
		return ErrUserNotFound
	}
	u.VerificationSID = &sid
	u.UpdatedAt = time.Now()
	return nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// GetByPhone retrieves a user by normalized phone number.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*User, error) {
	query := `
		SELECT id, phone, verified, account_type, verification_sid, created_at, updated_at
		FROM users
		WHERE phone = $1
	`
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, phone).Scan(
		&u.ID, &u.Phone, &u.Verified, &u.AccountType, &u.VerificationSID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, phone, verified, account_type, verification_sid, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Phone, &u.Verified, &u.AccountType, &u.VerificationSID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// Upsert creates the user for a phone number if absent and returns the
// stored record. The ON CONFLICT no-op keeps an existing row untouched.
func (r *PostgresRepository) Upsert(ctx context.Context, phone string) (*User, error) {
	insert := `
		INSERT INTO users (id, phone, verified, account_type, created_at, updated_at)
		VALUES ($1, $2, false, $3, NOW(), NOW())
		ON CONFLICT (phone) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, uuid.New().String(), phone, AccountFree); err != nil {
		r.logger.Error("failed to upsert user",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return r.GetByPhone(ctx, phone)
}

// MarkVerified sets the verified flag for a phone number.
func (r *PostgresRepository) MarkVerified(ctx context.Context, phone string) error {
	query := `UPDATE users SET verified = true, updated_at = NOW() WHERE phone = $1`
	result, err := r.db.ExecContext(ctx, query, phone)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetVerificationSID records the in-flight Twilio verification SID.
func (r *PostgresRepository) SetVerificationSID(ctx context.Context, phone, sid string) error {
	query := `UPDATE users SET verification_sid = $2, updated_at = NOW() WHERE phone = $1`
	result, err := r.db.ExecContext(ctx, query, phone, sid)
	if err != nil {
		return fmt.Errorf("failed to set verification sid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}
