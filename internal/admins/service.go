package admins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const minPasswordLength = 8

var (
	// ErrInvalidCredentials is returned for unknown usernames and wrong passwords alike.
	ErrInvalidCredentials = errors.New("admins: invalid credentials")
	// ErrInvalidAdmin indicates that the seeded admin configuration is unusable.
	ErrInvalidAdmin = errors.New("admins: invalid admin")
	// ErrPasswordTooShort indicates a password below the minimum length.
	ErrPasswordTooShort = errors.New("admins: password too short")
)

// HashPassword produces a bcrypt hash suitable for the admin.password_hash setting.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("admins: hash password: %w", err)
	}
	return string(hash), nil
}

// ServiceConfig describes the dependencies required for admin authentication.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages admin accounts.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the admin service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("admins: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// EnsureAdmin creates the configured admin or replaces its password hash.
func (s *Service) EnsureAdmin(ctx context.Context, username string, passwordHash string) error {
	username = normalizeUsername(username)
	if username == "" {
		return fmt.Errorf("%w: username required", ErrInvalidAdmin)
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return fmt.Errorf("%w: password hash is not bcrypt: %v", ErrInvalidAdmin, err)
	}
	admin := Admin{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"password_hash", "updated_at"}),
		}).
		Create(&admin).
		Error
	if err != nil {
		return fmt.Errorf("admins: ensure admin: %w", err)
	}
	s.logger.Info("admin account ensured", zap.String("username", username))
	return nil
}

// Authenticate verifies the password and records the login time.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (Admin, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return Admin{}, ErrInvalidCredentials
	}

	var admin Admin
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn("admin login rejected", zap.String("username", username), zap.String("reason", "unknown_user"))
		return Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return Admin{}, fmt.Errorf("admins: load admin: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("admin login rejected", zap.String("username", username), zap.String("reason", "password_mismatch"))
		return Admin{}, ErrInvalidCredentials
	}

	loginAt := s.now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&Admin{}).
		Where("username = ?", username).
		Update("last_login_at", loginAt).
		Error; err != nil {
		s.logger.Warn("admin last login update failed", zap.String("username", username), zap.Error(err))
	} else {
		admin.LastLoginAt = &loginAt
	}
	return admin, nil
}
