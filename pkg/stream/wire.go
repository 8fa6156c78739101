package stream

import (
	"fmt"
	"strings"
	"time"

	"sentistream/pkg/domain"
)

// Wire field names shared by the producer and the worker pool.
const (
	FieldPostID    = "post_id"
	FieldSource    = "source"
	FieldContent   = "content"
	FieldAuthor    = "author"
	FieldCreatedAt = "created_at"
)

// EncodePost flattens a post into the stream's string field map.
func EncodePost(p domain.Post) map[string]string {
	return map[string]string{
		FieldPostID:    p.PostID,
		FieldSource:    p.Source,
		FieldContent:   p.Content,
		FieldAuthor:    p.Author,
		FieldCreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// DecodePost rebuilds a post from entry fields. A missing post_id or content
// makes the entry permanently unprocessable, so that is an error here rather
// than a retriable condition.
func DecodePost(fields map[string]string) (domain.Post, error) {
	postID := strings.TrimSpace(fields[FieldPostID])
	if postID == "" {
		return domain.Post{}, fmt.Errorf("entry missing %s", FieldPostID)
	}
	content := fields[FieldContent]
	if strings.TrimSpace(content) == "" {
		return domain.Post{}, fmt.Errorf("entry %s missing %s", postID, FieldContent)
	}
	post := domain.Post{
		PostID:  postID,
		Source:  fields[FieldSource],
		Content: content,
		Author:  fields[FieldAuthor],
	}
	if raw := fields[FieldCreatedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Post{}, fmt.Errorf("entry %s has bad %s: %w", postID, FieldCreatedAt, err)
		}
		post.CreatedAt = t
	}
	return post, nil
}
