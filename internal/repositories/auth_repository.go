package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq" // For pq.Error
)

// UserRepository defines the interface for user storage used by authentication.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, userID string) (*models.User, error)
}

// userRepository implements the UserRepository interface on Postgres.
type userRepository struct {
	db SQLExecutor
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db SQLExecutor) UserRepository {
	return &userRepository{db: db}
}

// CreateUser inserts a new user. The user must already carry the bcrypt hash of its password.
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	query := `INSERT INTO users (id, username, password_hash, nombre, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash, user.Name, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: %s (constraint: %s)", ErrDuplicateKey, pqErr.Message, pqErr.Constraint)
		}
		return fmt.Errorf("%w: creating user: %v", ErrDatabaseError, err)
	}
	return nil
}

func scanUser(s scanner) (*models.User, error) {
	user := &models.User{}
	if err := s.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Name, &user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByUsername retrieves a user, including its password hash, by username.
func (r *userRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT id, username, password_hash, nombre, created_at FROM users WHERE username = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding user by username %s: %v", ErrDatabaseError, username, err)
	}
	return user, nil
}

// FindUserByID retrieves a user by id.
func (r *userRepository) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	query := `SELECT id, username, password_hash, nombre, created_at FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding user by ID %s: %v", ErrDatabaseError, userID, err)
	}
	return user, nil
}
