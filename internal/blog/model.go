package blog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxSlugLength    = 190
	maxTitleLength   = 200
	maxSummaryLength = 500
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	// ErrInvalidSlug indicates that a slug is empty, too long or not kebab-case.
	ErrInvalidSlug = errors.New("blog: invalid slug")
	// ErrInvalidTitle indicates that a title is empty or too long.
	ErrInvalidTitle = errors.New("blog: invalid title")
	// ErrInvalidSummary indicates that a summary is too long.
	ErrInvalidSummary = errors.New("blog: invalid summary")
)

// Slug is a validated kebab-case post identifier.
type Slug string

// NewSlug validates raw input and returns a Slug.
func NewSlug(rawInput string) (Slug, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSlug)
	}
	if len(trimmed) > maxSlugLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugPattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q is not kebab-case", ErrInvalidSlug, trimmed)
	}
	return Slug(trimmed), nil
}

// String returns the slug.
func (slug Slug) String() string {
	return string(slug)
}

// Post is a persisted blog post.
type Post struct {
	Slug      string    `gorm:"column:slug;primaryKey;size:190;not null"`
	Title     string    `gorm:"column:title;size:200;not null"`
	Summary   string    `gorm:"column:summary;size:500;not null;default:''"`
	Markdown  string    `gorm:"column:markdown;type:text;not null"`
	Published bool      `gorm:"column:published;not null;default:false;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "blog_posts"
}

// PostInput is an admin edit of a post.
type PostInput struct {
	Slug      Slug
	Title     string
	Summary   string
	Markdown  string
	Published bool
}

// Validate trims free-text fields and checks their bounds.
func (input PostInput) Validate() (PostInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Summary = strings.TrimSpace(input.Summary)
	if input.Title == "" || utf8.RuneCountInString(input.Title) > maxTitleLength {
		return PostInput{}, fmt.Errorf("%w: must be 1-%d characters", ErrInvalidTitle, maxTitleLength)
	}
	if utf8.RuneCountInString(input.Summary) > maxSummaryLength {
		return PostInput{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidSummary, maxSummaryLength)
	}
	return input, nil
}

// RenderedPost pairs a post with its sanitized HTML body.
type RenderedPost struct {
	Post
	HTML string
}
