package comments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxParentHops = 8

var (
	// ErrParentNotFound indicates that a reply targets a comment that does not exist on the post.
	ErrParentNotFound = errors.New("comments: parent comment not found")
	// ErrCommentNotFound indicates that the comment does not exist.
	ErrCommentNotFound = errors.New("comments: comment not found")
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "comments.service.new"
	opAddComment     = "comments.add_comment"
	opResolveParent  = "comments.resolve_parent"
	opListDiscussion = "comments.list_discussion"
	opDeleteComment  = "comments.delete_comment"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Discussion is the renderable comment tree of a post.
type Discussion struct {
	PostSlug PostSlug
	Threads  []Thread
	Total    int
}

// AddComment stores a root comment or a reply. A reply whose parent is itself
// a reply is attached to that parent's root so the stored data always forms
// one level of nesting.
func (s *Service) AddComment(ctx context.Context, request NewComment) (Comment, error) {
	if s.db == nil {
		s.logError(opAddComment, "missing_database", errMissingDatabase)
		return Comment{}, newServiceError(opAddComment, "missing_database", errMissingDatabase)
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, newServiceError(opAddComment, "id_generation_failed", err)
	}

	comment := Comment{
		CommentID:  commentID,
		PostSlug:   request.PostSlug.String(),
		AuthorName: request.AuthorName.String(),
		Body:       request.Body.String(),
		CreatedAt:  s.clock().UTC(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if request.ParentID != nil {
			rootID, err := resolveRootID(tx, request.PostSlug, *request.ParentID)
			if errors.Is(err, ErrParentNotFound) {
				return newServiceError(opAddComment, "parent_not_found", err)
			}
			if err != nil {
				s.logError(opAddComment, "parent_select_failed", err,
					zap.String("post_slug", request.PostSlug.String()),
					zap.String("parent_id", request.ParentID.String()))
				return newServiceError(opAddComment, "parent_select_failed", err)
			}
			comment.ParentID = &rootID
		}
		if err := tx.Create(&comment).Error; err != nil {
			s.logError(opAddComment, "comment_insert_failed", err,
				zap.String("post_slug", request.PostSlug.String()))
			return newServiceError(opAddComment, "comment_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}

	return comment, nil
}

// ResolveParent returns the root comment a reply to parentID would attach to.
// It fails with ErrParentNotFound when parentID is not a comment of slug.
func (s *Service) ResolveParent(ctx context.Context, slug PostSlug, parentID CommentID) (CommentID, error) {
	if s.db == nil {
		s.logError(opResolveParent, "missing_database", errMissingDatabase)
		return "", newServiceError(opResolveParent, "missing_database", errMissingDatabase)
	}
	rootID, err := resolveRootID(s.db.WithContext(ctx), slug, parentID)
	if errors.Is(err, ErrParentNotFound) {
		return "", newServiceError(opResolveParent, "parent_not_found", err)
	}
	if err != nil {
		s.logError(opResolveParent, "parent_select_failed", err,
			zap.String("post_slug", slug.String()),
			zap.String("parent_id", parentID.String()))
		return "", newServiceError(opResolveParent, "parent_select_failed", err)
	}
	return CommentID(rootID), nil
}

// ListDiscussion loads the comments of a post and arranges them into threads.
func (s *Service) ListDiscussion(ctx context.Context, slug PostSlug) (Discussion, error) {
	if s.db == nil {
		s.logError(opListDiscussion, "missing_database", errMissingDatabase)
		return Discussion{}, newServiceError(opListDiscussion, "missing_database", errMissingDatabase)
	}

	var flat []Comment
	if err := s.db.WithContext(ctx).
		Where("post_slug = ?", slug.String()).
		Order("created_at ASC").
		Order("comment_id ASC").
		Find(&flat).Error; err != nil {
		s.logError(opListDiscussion, "query_failed", err, zap.String("post_slug", slug.String()))
		return Discussion{}, newServiceError(opListDiscussion, "query_failed", err)
	}

	threads := BuildTree(flat)
	return Discussion{
		PostSlug: slug,
		Threads:  threads,
		Total:    CountAll(threads),
	}, nil
}

// DeleteComment removes a comment together with its direct replies and
// returns the removed comment.
func (s *Service) DeleteComment(ctx context.Context, id CommentID) (Comment, error) {
	if s.db == nil {
		s.logError(opDeleteComment, "missing_database", errMissingDatabase)
		return Comment{}, newServiceError(opDeleteComment, "missing_database", errMissingDatabase)
	}

	var removed Comment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("comment_id = ?", id.String()).Take(&removed).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteComment, "not_found", ErrCommentNotFound)
		}
		if err != nil {
			s.logError(opDeleteComment, "comment_select_failed", err, zap.String("comment_id", id.String()))
			return newServiceError(opDeleteComment, "comment_select_failed", err)
		}
		if err := tx.Where("comment_id = ? OR parent_id = ?", id.String(), id.String()).
			Delete(&Comment{}).Error; err != nil {
			s.logError(opDeleteComment, "comment_delete_failed", err, zap.String("comment_id", id.String()))
			return newServiceError(opDeleteComment, "comment_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Comment{}, txErr
	}

	s.logger.Info("comment deleted",
		zap.String("comment_id", removed.CommentID),
		zap.String("post_slug", removed.PostSlug))
	return removed, nil
}

func resolveRootID(tx *gorm.DB, slug PostSlug, parentID CommentID) (string, error) {
	currentID := parentID.String()
	for hop := 0; hop < maxParentHops; hop++ {
		var parent Comment
		err := tx.Where("comment_id = ? AND post_slug = ?", currentID, slug.String()).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrParentNotFound
		}
		if err != nil {
			return "", err
		}
		if parent.IsRoot() {
			return parent.CommentID, nil
		}
		currentID = *parent.ParentID
	}
	return "", ErrParentNotFound
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("comments service error", attrs...)
}
