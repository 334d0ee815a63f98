package domain

import (
	"fmt"
	"time"
)

// MirroredPost is a source network post bridged into the fediverse.
type MirroredPost struct {
	ID           int64
	AuthorHandle string
	Content      string
	CreatedAt    time.Time
	Sensitive    bool
	InReplyToID  int64
	// InReplyToHandle is only set when InReplyToID is.
	InReplyToHandle string
}

func (post *MirroredPost) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tAuthor: %s \n\tContent: %s \n\tCreatedAt: %s", post.ID, post.AuthorHandle, post.Content, post.CreatedAt)
}
