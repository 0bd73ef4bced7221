package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/hawkpark/hawkpark-be/internal/database"
	"github.com/hawkpark/hawkpark-be/internal/models"
)

// passwordCost matches the ten salt rounds accounts have always been hashed with.
const passwordCost = 10

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	UpdateUser(ctx context.Context, id int64, patch UserPatch) (models.User, error)
	UpdatePassword(ctx context.Context, id int64, currentPassword, newPassword string) error
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
}

// UserPatch carries a partial profile update.
type UserPatch struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// UserService provides business logic for user management.
type UserService struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *sqlx.DB) *UserService {
	return &UserService{db: db, now: time.Now}
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT id, username, email, created_at FROM users WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.NewAppError(models.CodeNotFoundOrNotOwned, fmt.Sprintf("user with ID %d not found", id))
		}
		return models.User{}, models.NewStorageError(err)
	}
	return user, nil
}

// getUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) getUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?"), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.NewAppError(models.CodeNotFoundOrNotOwned, "user not found")
		}
		return models.User{}, models.NewStorageError(err)
	}
	return user, nil
}

// CreateUser creates a new user, hashing their password.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return models.User{}, models.NewAppError(models.CodeMissingFields, "Missing required fields")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    s.now().UTC(),
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, models.NewAppError(models.CodeDuplicateAccount, "Username or email already exists")
		}
		return models.User{}, models.NewStorageError(err)
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// UpdateUser applies a partial profile update. When the email changes, the
// email caches held on the user's listings and bookings follow it.
func (s *UserService) UpdateUser(ctx context.Context, id int64, patch UserPatch) (models.User, error) {
	if patch.Username == nil && patch.Email == nil {
		return models.User{}, models.NewAppError(models.CodeNoFieldsProvided, "At least one field (username or email) must be provided")
	}

	var sets []string
	var args []interface{}
	if patch.Username != nil {
		if strings.TrimSpace(*patch.Username) == "" {
			return models.User{}, models.NewAppError(models.CodeInvalidFields, "username must not be empty")
		}
		sets = append(sets, "username = ?")
		args = append(args, strings.TrimSpace(*patch.Username))
	}
	if patch.Email != nil {
		if strings.TrimSpace(*patch.Email) == "" {
			return models.User{}, models.NewAppError(models.CodeInvalidFields, "email must not be empty")
		}
		sets = append(sets, "email = ?")
		args = append(args, strings.TrimSpace(*patch.Email))
	}
	args = append(args, id)

	var updated models.User
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var updatedID int64
		query := tx.Rebind("UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ? RETURNING id")
		if err := tx.GetContext(ctx, &updatedID, query, args...); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &updated, tx.Rebind("SELECT id, username, email, created_at FROM users WHERE id = ?"), id); err != nil {
			return err
		}
		if patch.Email == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE listings SET owner_email = ? WHERE owner_id = ?"), updated.Email, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE bookings SET renter_email = ? WHERE renter_id = ?"), updated.Email, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, tx.Rebind("UPDATE bookings SET owner_email = ? WHERE owner_id = ?"), updated.Email, id)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.User{}, models.NewAppError(models.CodeNotFoundOrNotOwned, "User not found")
		case database.IsUniqueViolation(err):
			return models.User{}, models.NewAppError(models.CodeDuplicateAccount, "Username or email is already taken")
		}
		return models.User{}, models.NewStorageError(err)
	}
	return updated, nil
}

// UpdatePassword verifies the current password, then hashes and sets a new password for a user.
func (s *UserService) UpdatePassword(ctx context.Context, id int64, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return models.NewAppError(models.CodeMissingFields, "Missing fields")
	}

	var hash string
	err := s.db.GetContext(ctx, &hash, s.db.Rebind("SELECT password_hash FROM users WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewAppError(models.CodeNotFoundOrNotOwned, "User not found")
		}
		return models.NewStorageError(err)
	}

	// Check if the current password is correct
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)); err != nil {
		return models.NewAppError(models.CodeInvalidCredentials, "Current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), passwordCost)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET password_hash = ? WHERE id = ?"), string(hashedPassword), id); err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

// AuthenticateUser verifies a user's credentials.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	if email == "" || password == "" {
		return models.User{}, models.NewAppError(models.CodeMissingFields, "Missing email or password")
	}
	user, err := s.getUserByEmail(ctx, email)
	if err != nil {
		if models.HasCode(err, models.CodeStorageError) {
			return models.User{}, err
		}
		return models.User{}, models.NewAppError(models.CodeInvalidCredentials, "Invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, models.NewAppError(models.CodeInvalidCredentials, "Invalid email or password")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
