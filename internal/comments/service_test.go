package comments

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("c-%03d", p.next), nil
}

type steppingClock struct {
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "comments.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&Comment{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	clock := &steppingClock{current: baseTime}
	service, err := NewService(ServiceConfig{
		Database:   database,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{},
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustAdd(t *testing.T, service *Service, slug, author, body string, parentID string) Comment {
	t.Helper()
	request := NewComment{
		PostSlug:   mustPostSlug(t, slug),
		AuthorName: mustAuthorName(t, author),
		Body:       mustBody(t, body),
	}
	if parentID != "" {
		id := mustCommentID(t, parentID)
		request.ParentID = &id
	}
	created, err := service.AddComment(context.Background(), request)
	if err != nil {
		t.Fatalf("failed to add comment: %v", err)
	}
	return created
}

func TestServiceListDiscussionBuildsThreads(t *testing.T) {
	service := newTestService(t)
	first := mustAdd(t, service, "hello-world", "Ada", "First!", "")
	second := mustAdd(t, service, "hello-world", "Grace", "Second", "")
	reply := mustAdd(t, service, "hello-world", "Linus", "Reply to first", first.CommentID)
	mustAdd(t, service, "other-post", "Ken", "Elsewhere", "")

	discussion, err := service.ListDiscussion(context.Background(), mustPostSlug(t, "hello-world"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if discussion.Total != 3 {
		t.Fatalf("expected 3 comments, got %d", discussion.Total)
	}
	if len(discussion.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(discussion.Threads))
	}
	if discussion.Threads[0].Root.CommentID != first.CommentID || discussion.Threads[1].Root.CommentID != second.CommentID {
		t.Fatalf("unexpected root order: %+v", rootOrder(discussion.Threads))
	}
	if len(discussion.Threads[0].Replies) != 1 || discussion.Threads[0].Replies[0].CommentID != reply.CommentID {
		t.Fatalf("unexpected replies: %+v", discussion.Threads[0].Replies)
	}
}

func TestServiceAddCommentResolvesReplyToRoot(t *testing.T) {
	service := newTestService(t)
	root := mustAdd(t, service, "hello-world", "Ada", "Root", "")
	reply := mustAdd(t, service, "hello-world", "Grace", "Reply", root.CommentID)
	nested := mustAdd(t, service, "hello-world", "Linus", "Reply to reply", reply.CommentID)

	if nested.ParentID == nil || *nested.ParentID != root.CommentID {
		t.Fatalf("expected nested reply to attach to root %s, got %v", root.CommentID, nested.ParentID)
	}

	discussion, err := service.ListDiscussion(context.Background(), mustPostSlug(t, "hello-world"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if discussion.Total != 3 {
		t.Fatalf("expected nested reply to be displayed, total %d", discussion.Total)
	}
}

func TestServiceAddCommentRejectsUnknownParent(t *testing.T) {
	service := newTestService(t)
	root := mustAdd(t, service, "hello-world", "Ada", "Root", "")

	testCases := []struct {
		name     string
		slug     string
		parentID string
	}{
		{name: "missing-parent", slug: "hello-world", parentID: "does-not-exist"},
		{name: "parent-on-other-post", slug: "other-post", parentID: root.CommentID},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parentID := mustCommentID(t, testCase.parentID)
			_, err := service.AddComment(context.Background(), NewComment{
				PostSlug:   mustPostSlug(t, testCase.slug),
				AuthorName: mustAuthorName(t, "Eve"),
				Body:       mustBody(t, "hi"),
				ParentID:   &parentID,
			})
			if !errors.Is(err, ErrParentNotFound) {
				t.Fatalf("expected ErrParentNotFound, got %v", err)
			}
			var serviceErr *ServiceError
			if !errors.As(err, &serviceErr) || serviceErr.Code() != "comments.add_comment.parent_not_found" {
				t.Fatalf("unexpected service error %v", err)
			}
		})
	}
}

func TestServiceResolveParent(t *testing.T) {
	service := newTestService(t)
	root := mustAdd(t, service, "hello-world", "Ada", "Root", "")
	reply := mustAdd(t, service, "hello-world", "Grace", "Reply", root.CommentID)

	rootID, err := service.ResolveParent(context.Background(), mustPostSlug(t, "hello-world"), mustCommentID(t, reply.CommentID))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rootID.String() != root.CommentID {
		t.Fatalf("expected root %s, got %s", root.CommentID, rootID)
	}

	_, err = service.ResolveParent(context.Background(), mustPostSlug(t, "other-post"), mustCommentID(t, root.CommentID))
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound for parent on another post, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "comments.resolve_parent.parent_not_found" {
		t.Fatalf("unexpected service error %v", err)
	}
}

func TestServiceDeleteCommentRemovesReplies(t *testing.T) {
	service := newTestService(t)
	root := mustAdd(t, service, "hello-world", "Ada", "Root", "")
	mustAdd(t, service, "hello-world", "Grace", "Reply", root.CommentID)
	survivor := mustAdd(t, service, "hello-world", "Ken", "Another root", "")

	removed, err := service.DeleteComment(context.Background(), mustCommentID(t, root.CommentID))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed.PostSlug != "hello-world" {
		t.Fatalf("unexpected removed comment %+v", removed)
	}

	discussion, err := service.ListDiscussion(context.Background(), mustPostSlug(t, "hello-world"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if discussion.Total != 1 || discussion.Threads[0].Root.CommentID != survivor.CommentID {
		t.Fatalf("unexpected discussion after delete: %+v", discussion)
	}

	if _, err := service.DeleteComment(context.Background(), mustCommentID(t, root.CommentID)); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestServiceListDiscussionDropsOrphans(t *testing.T) {
	service := newTestService(t)
	root := mustAdd(t, service, "hello-world", "Ada", "Root", "")
	dangling := "missing-root"
	orphan := Comment{
		CommentID:  "legacy-orphan",
		PostSlug:   "hello-world",
		AuthorName: "Mallory",
		Body:       "Left behind",
		CreatedAt:  baseTime.Add(time.Hour),
		ParentID:   &dangling,
	}
	if err := service.db.Create(&orphan).Error; err != nil {
		t.Fatalf("failed to insert orphan: %v", err)
	}

	discussion, err := service.ListDiscussion(context.Background(), mustPostSlug(t, "hello-world"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if discussion.Total != 1 || discussion.Threads[0].Root.CommentID != root.CommentID {
		t.Fatalf("expected orphan to be dropped, got %+v", discussion)
	}
}

func TestServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(ServiceConfig{IDProvider: &sequenceIDProvider{}})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "comments.service.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}

	empty := &Service{}
	if _, err := empty.ListDiscussion(context.Background(), "hello-world"); err == nil {
		t.Fatalf("expected error from service without database")
	}
}
