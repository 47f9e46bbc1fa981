package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/models"
	"github.com/noticeboardhq/noticeboard/pkg/crypto"
	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/metrics"
	"github.com/noticeboardhq/noticeboard/pkg/validator"
)

// Profile is the public view of a user; the password hash never leaves the
// service, cached or otherwise.
type Profile struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserService owns accounts: registration, credential checks and the cached
// public profile.
type UserService struct {
	db    *database.Facade
	store cache.Store
	inv   *cache.Invalidator
	ttl   time.Duration
}

// NewUserService wires the account service.
func NewUserService(db *database.Facade, store cache.Store, inv *cache.Invalidator, ttl time.Duration) (*UserService, error) {
	if db == nil {
		return nil, errors.New("users: database facade is required")
	}
	if store == nil {
		return nil, errors.New("users: cache store is required")
	}
	return &UserService{db: db, store: store, inv: inv, ttl: ttl}, nil
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Register creates a member account.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (Profile, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return Profile{}, appErrors.NewValidation(err.Error())
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return Profile{}, appErrors.Wrap(err, "hash password")
	}

	user := models.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		Role:         models.RoleMember,
	}
	if err := s.db.DB().WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Profile{}, appErrors.NewValidation("username or email already taken")
		}
		return Profile{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "user", user.ID)
	return Profile{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Authenticate verifies credentials and returns the caller's identity.
// Unknown username and wrong password produce the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (auth.Identity, error) {
	var user models.User
	err := s.db.DB().WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.Identity{}, appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, appErrors.ErrQuery.WithInternal(err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.Identity{}, appErrors.ErrInvalidCredentials
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return auth.Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Get returns a user's public profile, cached per id.
func (s *UserService) Get(ctx context.Context, id uint) (Profile, error) {
	return cache.Remember(ctx, s.store, UserKey(id), s.ttl, func(ctx context.Context) (Profile, error) {
		var user models.User
		err := s.db.DB().WithContext(ctx).Take(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, appErrors.ErrNotFound
		}
		if err != nil {
			return Profile{}, appErrors.ErrQuery.WithInternal(err)
		}
		return Profile{ID: user.ID, Username: user.Username, Role: user.Role}, nil
	})
}
