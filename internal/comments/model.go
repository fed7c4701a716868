package comments

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxIdentifierLength = 190
	maxAuthorNameLength = 80
	maxBodyLength       = 4000
)

var (
	// ErrInvalidPostSlug indicates that a post slug is empty or exceeds storage bounds.
	ErrInvalidPostSlug = errors.New("comments: invalid post slug")
	// ErrInvalidCommentID indicates that a comment identifier is empty or exceeds storage bounds.
	ErrInvalidCommentID = errors.New("comments: invalid comment id")
	// ErrInvalidAuthorName indicates that an author display name is empty or too long.
	ErrInvalidAuthorName = errors.New("comments: invalid author name")
	// ErrInvalidBody indicates that a comment body is empty or too long.
	ErrInvalidBody = errors.New("comments: invalid body")
)

// PostSlug identifies the post a discussion belongs to.
type PostSlug string

// NewPostSlug validates raw input and returns a lower-cased PostSlug.
func NewPostSlug(rawInput string) (PostSlug, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostSlug)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostSlug, maxIdentifierLength)
	}
	return PostSlug(trimmed), nil
}

// String returns the underlying slug.
func (slug PostSlug) String() string {
	return string(slug)
}

// CommentID represents a validated comment identifier.
type CommentID string

// NewCommentID validates raw input and returns a CommentID.
func NewCommentID(rawInput string) (CommentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCommentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCommentID, maxIdentifierLength)
	}
	return CommentID(trimmed), nil
}

// String returns the underlying identifier.
func (id CommentID) String() string {
	return string(id)
}

// AuthorName is a trimmed display name.
type AuthorName string

// NewAuthorName validates raw input and returns an AuthorName.
func NewAuthorName(rawInput string) (AuthorName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthorName)
	}
	if utf8.RuneCountInString(trimmed) > maxAuthorNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAuthorName, maxAuthorNameLength)
	}
	return AuthorName(trimmed), nil
}

// String returns the display name.
func (name AuthorName) String() string {
	return string(name)
}

// Body is the trimmed text of a comment.
type Body string

// NewBody validates raw input and returns a Body.
func NewBody(rawInput string) (Body, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBody)
	}
	if utf8.RuneCountInString(trimmed) > maxBodyLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBody, maxBodyLength)
	}
	return Body(trimmed), nil
}

// String returns the text.
func (body Body) String() string {
	return string(body)
}

// Comment is a single persisted comment. A nil ParentID marks a root comment.
type Comment struct {
	CommentID  string    `gorm:"column:comment_id;primaryKey;size:190;not null"`
	PostSlug   string    `gorm:"column:post_slug;size:190;not null;index:idx_comments_post_created,priority:1"`
	AuthorName string    `gorm:"column:author_name;size:320;not null"`
	Body       string    `gorm:"column:body;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;index:idx_comments_post_created,priority:2"`
	ParentID   *string   `gorm:"column:parent_id;size:190;index"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// IsRoot reports whether the comment starts a thread.
func (c Comment) IsRoot() bool {
	return c.ParentID == nil
}

// NewComment describes a comment submission.
type NewComment struct {
	PostSlug   PostSlug
	AuthorName AuthorName
	Body       Body
	ParentID   *CommentID
}
