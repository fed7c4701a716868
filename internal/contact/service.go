package contact

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNameLength    = 120
	maxEmailLength   = 320
	maxMessageLength = 5000
	defaultListLimit = 100
	maxListLimit     = 500
)

var (
	// ErrInvalidMessage indicates that a submission failed validation.
	ErrInvalidMessage = errors.New("contact: invalid message")
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// Message is a visitor's contact form submission.
type Message struct {
	MessageID string    `gorm:"column:message_id;primaryKey;size:190;not null"`
	Name      string    `gorm:"column:name;size:120;not null"`
	Email     string    `gorm:"column:email;size:320;not null"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "contact_messages"
}

// Submission is the raw contact form input.
type Submission struct {
	Name    string
	Email   string
	Message string
}

// Validate trims the submission and checks every field.
func (s Submission) Validate() (Submission, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Message = strings.TrimSpace(s.Message)
	if s.Name == "" || utf8.RuneCountInString(s.Name) > maxNameLength {
		return Submission{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidMessage, maxNameLength)
	}
	if len(s.Email) > maxEmailLength {
		return Submission{}, fmt.Errorf("%w: email too long", ErrInvalidMessage)
	}
	address, err := mail.ParseAddress(s.Email)
	if err != nil || address.Address != s.Email {
		return Submission{}, fmt.Errorf("%w: email is not a bare address", ErrInvalidMessage)
	}
	if s.Message == "" || utf8.RuneCountInString(s.Message) > maxMessageLength {
		return Submission{}, fmt.Errorf("%w: message must be 1-%d characters", ErrInvalidMessage, maxMessageLength)
	}
	return s, nil
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Submit validates and stores a contact message.
func (s *Service) Submit(ctx context.Context, submission Submission) (Message, error) {
	normalized, err := submission.Validate()
	if err != nil {
		return Message{}, err
	}
	messageID, err := s.idProvider.NewID()
	if err != nil {
		return Message{}, fmt.Errorf("contact: generate id: %w", err)
	}
	message := Message{
		MessageID: messageID,
		Name:      normalized.Name,
		Email:     normalized.Email,
		Body:      normalized.Message,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logger.Error("contact message insert failed", zap.Error(err))
		return Message{}, fmt.Errorf("contact: store message: %w", err)
	}
	s.logger.Info("contact message received", zap.String("message_id", message.MessageID))
	return message, nil
}

// List returns the most recent messages, newest first. The limit falls back
// to defaultListLimit when unset and never exceeds maxListLimit.
func (s *Service) List(ctx context.Context, limit int) ([]Message, error) {
	var messages []Message
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(listLimit(limit)).
		Find(&messages).Error; err != nil {
		s.logger.Error("contact message query failed", zap.Error(err))
		return nil, fmt.Errorf("contact: list messages: %w", err)
	}
	return messages, nil
}

func listLimit(requested int) int {
	switch {
	case requested <= 0:
		return defaultListLimit
	case requested > maxListLimit:
		return maxListLimit
	default:
		return requested
	}
}
