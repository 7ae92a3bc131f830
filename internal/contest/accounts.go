package contest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/contest/pkg/models"
	"github.com/garnizeh/contest/pkg/repository"
)

// MinPasswordLength applies to every password set through the service.
const MinPasswordLength = 6

func hashPassword(pw string) (string, error) {
	if len(pw) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Register creates a participant account. Username and email must be unused.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	return s.createUser(ctx, username, email, password, false)
}

func (s *Service) createUser(ctx context.Context, username, email, password string, admin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if u, err := tx.GetUserByUsername(ctx, username); err != nil {
			return err
		} else if u != nil {
			return ErrUsernameTaken
		}
		if u, err := tx.GetUserByEmail(ctx, email); err != nil {
			return err
		} else if u != nil {
			return ErrEmailTaken
		}
		id, err = tx.CreateUser(ctx, &models.User{Username: username, Email: email, PasswordHash: hash, IsAdmin: admin})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", id, "admin", admin)
	return s.User(ctx, id)
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ChangePassword replaces a user's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	u, err := s.User(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	return s.ResetPassword(ctx, userID, next)
}

// ResetPassword sets a user's password without the current one.
func (s *Service) ResetPassword(ctx context.Context, userID int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.User(ctx, userID); err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

func (s *Service) User(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, nil
}

func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// ToggleAdmin flips the admin flag of another user.
func (s *Service) ToggleAdmin(ctx context.Context, actorID, userID int64) (*models.User, error) {
	if actorID == userID {
		return nil, ErrSelfAdminChange
	}
	var out *models.User
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		u, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		u.IsAdmin = !u.IsAdmin
		out = u
		return tx.SetAdmin(ctx, userID, u.IsAdmin)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin flag changed", "user_id", userID, "by", actorID, "admin", out.IsAdmin)
	return out, nil
}

// DeleteUser removes a user and, by cascade, their live submissions.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID int64) error {
	if actorID == userID {
		return fmt.Errorf("%w: cannot delete yourself", ErrInvalidInput)
	}
	if _, err := s.User(ctx, userID); err != nil {
		return err
	}
	return s.store.DeleteUser(ctx, userID)
}

// EnsureAdmin creates the bootstrap admin account unless a user with that
// username already exists. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if u != nil {
		return false, nil
	}
	_, err = s.createUser(ctx, username, email, password, true)
	if errors.Is(err, ErrUsernameTaken) {
		return false, nil
	}
	return err == nil, err
}
