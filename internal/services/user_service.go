package services

import (
	"context"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/mroshb/shop_economy/internal/repositories"
	"github.com/mroshb/shop_economy/internal/security"
	"github.com/mroshb/shop_economy/internal/settings"
	"github.com/mroshb/shop_economy/pkg/errors"
	"github.com/mroshb/shop_economy/pkg/logger"
)

type UserService struct {
	env      Env
	userRepo *repositories.UserRepository
}

func NewUserService(env Env) *UserService {
	return &UserService{
		env:      env,
		userRepo: repositories.NewUserRepository(env.DB),
	}
}

// CreateOrLogin returns the user, creating it with the starting balance on
// first contact. created reports whether a new account was made.
func (s *UserService) CreateOrLogin(ctx context.Context, userID, username, displayName string) (user *models.User, created bool, err error) {
	if err := validateID("user", userID); err != nil {
		return nil, false, err
	}
	username = security.SanitizeString(username, 100)
	displayName = security.SanitizeDisplayName(displayName)
	startingCoins := s.env.Settings.Int(ctx, settings.KeyDefaultCoins)
	now := s.env.Clock.Now()

	err = s.env.read(ctx, "login", func(ctx context.Context) error {
		existing, err := s.userRepo.GetUserByID(ctx, userID)
		if err == nil {
			user, created = existing, false
			return nil
		}
		if !errors.IsCode(err, errors.ErrCodeNotFound) {
			return err
		}

		fresh := &models.User{
			ID:          userID,
			Username:    username,
			DisplayName: displayName,
			Coins:       startingCoins,
			Status:      models.UserStatusActive,
			LastLoginAt: &now,
		}
		err = s.userRepo.CreateUser(ctx, fresh)
		if errors.IsCode(err, errors.ErrCodeAlreadyExists) {
			// created concurrently; read it back on the next attempt
			existing, err = s.userRepo.GetUserByID(ctx, userID)
			user, created = existing, false
			return err
		}
		if err != nil {
			return err
		}
		user, created = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		logger.Info("User registered", "user_id", userID, "coins", user.Coins)
		return user, true, nil
	}

	if !user.IsActive() {
		return nil, false, errors.Newf(errors.ErrCodeAccountDisabled, "account is %s", user.Status)
	}
	if err := s.userRepo.TouchLogin(ctx, userID, username, displayName, now); err != nil {
		logger.Warn("Failed to record login", "user_id", userID, "error", err)
	}
	user.Username, user.DisplayName, user.LastLoginAt = username, displayName, &now
	return user, false, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if err := validateID("user", userID); err != nil {
		return nil, err
	}
	var user *models.User
	err := s.env.read(ctx, "get_user", func(ctx context.Context) error {
		u, err := s.userRepo.GetUserByID(ctx, userID)
		user = u
		return err
	})
	return user, err
}

// Actor resolves the identity used for admin checks from the persisted flag.
func (s *UserService) Actor(ctx context.Context, userID string) (Actor, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: user.ID, IsAdmin: user.IsAdmin && user.IsActive()}, nil
}

// UpdateStatus bans, unbans or deactivates an account.
func (s *UserService) UpdateStatus(ctx context.Context, actor Actor, userID, status string) error {
	if err := actor.requireAdmin(); err != nil {
		return err
	}
	if err := validateID("user", userID); err != nil {
		return err
	}
	if !models.ValidUserStatus(status) {
		return errors.Newf(errors.ErrCodeValidation, "invalid status %q", status)
	}
	if userID == actor.UserID && status != models.UserStatusActive {
		return errors.New(errors.ErrCodeValidation, "admins cannot disable themselves")
	}

	err := s.env.retry(ctx, "update_status", true, func(ctx context.Context) error {
		return s.userRepo.UpdateUserStatus(ctx, userID, status)
	})
	if err != nil {
		logRejected("update_status", err, "actor", actor.UserID, "user_id", userID)
		return err
	}
	logger.Info("User status changed", "actor", actor.UserID, "user_id", userID, "status", status)
	return nil
}
