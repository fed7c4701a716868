package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPostNotFound indicates that no visible post has the slug.
	ErrPostNotFound = errors.New("blog: post not found")
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
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
	opServiceNew = "blog.service.new"
	opUpsertPost = "blog.upsert_post"
	opGetPost    = "blog.get_post"
	opListPosts  = "blog.list_posts"
	opDeletePost = "blog.delete_post"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Renderer *MarkdownRenderer
	Logger   *zap.Logger
}

type Service struct {
	db       *gorm.DB
	clock    func() time.Time
	renderer *MarkdownRenderer
	logger   *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = NewMarkdownRenderer()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		clock:    clock,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// UpsertPost creates the post or replaces its content, keeping CreatedAt.
func (s *Service) UpsertPost(ctx context.Context, input PostInput) (Post, error) {
	validated, err := input.Validate()
	if err != nil {
		return Post{}, newServiceError(opUpsertPost, "invalid_input", err)
	}

	now := s.clock().UTC()
	var saved Post
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Post
		err := tx.Where("slug = ?", validated.Slug.String()).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = Post{Slug: validated.Slug.String(), CreatedAt: now}
		case err != nil:
			s.logError(opUpsertPost, "post_select_failed", err, zap.String("slug", validated.Slug.String()))
			return newServiceError(opUpsertPost, "post_select_failed", err)
		}

		existing.Title = validated.Title
		existing.Summary = validated.Summary
		existing.Markdown = validated.Markdown
		existing.Published = validated.Published
		existing.UpdatedAt = now

		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpsertPost, "post_save_failed", err, zap.String("slug", validated.Slug.String()))
			return newServiceError(opUpsertPost, "post_save_failed", err)
		}
		saved = existing
		return nil
	})
	if txErr != nil {
		return Post{}, txErr
	}
	return saved, nil
}

// GetPost loads a post and renders its body. Drafts are visible only when
// includeDrafts is set.
func (s *Service) GetPost(ctx context.Context, slug Slug, includeDrafts bool) (RenderedPost, error) {
	post, err := s.findPost(ctx, slug, includeDrafts)
	if err != nil {
		return RenderedPost{}, err
	}
	body, err := s.renderer.Render(post.Markdown)
	if err != nil {
		s.logError(opGetPost, "render_failed", err, zap.String("slug", slug.String()))
		return RenderedPost{}, newServiceError(opGetPost, "render_failed", err)
	}
	return RenderedPost{Post: post, HTML: body}, nil
}

// PostExists reports whether a published post has the slug.
func (s *Service) PostExists(ctx context.Context, slug Slug) (bool, error) {
	_, err := s.findPost(ctx, slug, false)
	if errors.Is(err, ErrPostNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPosts returns posts newest first.
func (s *Service) ListPosts(ctx context.Context, includeDrafts bool) ([]Post, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if !includeDrafts {
		query = query.Where("published = ?", true)
	}
	var posts []Post
	if err := query.Find(&posts).Error; err != nil {
		s.logError(opListPosts, "query_failed", err)
		return nil, newServiceError(opListPosts, "query_failed", err)
	}
	return posts, nil
}

// DeletePost removes a post.
func (s *Service) DeletePost(ctx context.Context, slug Slug) error {
	result := s.db.WithContext(ctx).Where("slug = ?", slug.String()).Delete(&Post{})
	if result.Error != nil {
		s.logError(opDeletePost, "delete_failed", result.Error, zap.String("slug", slug.String()))
		return newServiceError(opDeletePost, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeletePost, "not_found", ErrPostNotFound)
	}
	return nil
}

func (s *Service) findPost(ctx context.Context, slug Slug, includeDrafts bool) (Post, error) {
	query := s.db.WithContext(ctx).Where("slug = ?", slug.String())
	if !includeDrafts {
		query = query.Where("published = ?", true)
	}
	var post Post
	err := query.Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, newServiceError(opGetPost, "not_found", ErrPostNotFound)
	}
	if err != nil {
		s.logError(opGetPost, "query_failed", err, zap.String("slug", slug.String()))
		return Post{}, newServiceError(opGetPost, "query_failed", err)
	}
	return post, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("blog service error", attrs...)
}
