package comments

import "testing"

func mustPostSlug(t *testing.T, value string) PostSlug {
	t.Helper()
	slug, err := NewPostSlug(value)
	if err != nil {
		t.Fatalf("unexpected post slug error: %v", err)
	}
	return slug
}

func mustCommentID(t *testing.T, value string) CommentID {
	t.Helper()
	id, err := NewCommentID(value)
	if err != nil {
		t.Fatalf("unexpected comment id error: %v", err)
	}
	return id
}

func mustAuthorName(t *testing.T, value string) AuthorName {
	t.Helper()
	name, err := NewAuthorName(value)
	if err != nil {
		t.Fatalf("unexpected author name error: %v", err)
	}
	return name
}

func mustBody(t *testing.T, value string) Body {
	t.Helper()
	body, err := NewBody(value)
	if err != nil {
		t.Fatalf("unexpected body error: %v", err)
	}
	return body
}
