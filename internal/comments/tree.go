package comments

// Thread is a root comment with its replies, oldest first.
type Thread struct {
	Root    Comment
	Replies []Comment
}

// BuildTree arranges flat comments into root threads. Callers supply the
// comments sorted by creation time; roots and replies keep that order.
//
// Only one level of nesting exists: a comment becomes a reply when its parent
// is present and is itself a root. Comments whose parent is missing or is a
// reply are orphans and are left out of the result.
func BuildTree(flat []Comment) []Thread {
	byID := make(map[string]Comment, len(flat))
	for _, comment := range flat {
		byID[comment.CommentID] = comment
	}

	threads := make([]Thread, 0, len(flat))
	threadIndex := make(map[string]int, len(flat))
	for _, comment := range flat {
		if !comment.IsRoot() {
			continue
		}
		threadIndex[comment.CommentID] = len(threads)
		threads = append(threads, Thread{Root: comment, Replies: []Comment{}})
	}

	for _, comment := range flat {
		if comment.IsRoot() {
			continue
		}
		parent, ok := byID[*comment.ParentID]
		if !ok || !parent.IsRoot() {
			continue
		}
		position, ok := threadIndex[parent.CommentID]
		if !ok {
			continue
		}
		threads[position].Replies = append(threads[position].Replies, comment)
	}

	return threads
}

// CountAll returns the number of comments included in threads.
func CountAll(threads []Thread) int {
	total := 0
	for _, thread := range threads {
		total += 1 + len(thread.Replies)
	}
	return total
}
