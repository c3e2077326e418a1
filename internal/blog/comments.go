package blog

import (
	"fmt"
	"time"
)

// CommentAuthor identifies the caller adding a comment or reply, with the
// display snapshot copied onto the new node.
type CommentAuthor struct {
	UserID    string
	Name      string
	AvatarURL string
}

// The mutators below are pure with respect to I/O: each one either applies
// fully or returns with the tree untouched, and every comment-count-affecting
// mutation ends with RecomputeCommentCount. Lookups match the first element
// with the given id so a duplicate id from a buggy client resolves
// deterministically.

// AddComment appends a new top-level comment. Any authenticated caller may
// comment; no ownership check applies.
func (p *Post) AddComment(id string, author CommentAuthor, message string, at time.Time) (Comment, error) {
	if message == "" {
		return Comment{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	comment := Comment{
		ID:           id,
		UserID:       author.UserID,
		Name:         author.Name,
		AvatarURL:    author.AvatarURL,
		Message:      message,
		PostedAt:     at,
		ReplyComment: []Reply{},
	}
	p.Comments = append(p.Comments, comment)
	p.RecomputeCommentCount()
	return comment, nil
}

// AddReply appends a reply under the comment with id parentCommentID.
// Replies do not count toward TotalComments.
func (p *Post) AddReply(parentCommentID, id string, author CommentAuthor, message, tagUser string, at time.Time) (Reply, error) {
	if message == "" {
		return Reply{}, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	parent := p.findComment(parentCommentID)
	if parent == nil {
		return Reply{}, fmt.Errorf("%w: comment %s", ErrNotFound, parentCommentID)
	}
	reply := Reply{
		ID:        id,
		UserID:    author.UserID,
		Name:      author.Name,
		AvatarURL: author.AvatarURL,
		Message:   message,
		TagUser:   tagUser,
		PostedAt:  at,
	}
	parent.ReplyComment = append(parent.ReplyComment, reply)
	p.RecomputeCommentCount()
	return reply, nil
}

// EditComment replaces the message of the caller's own comment. Id, author
// and postedAt are untouched.
func (p *Post) EditComment(callerID, commentID, message string) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	comment := p.findComment(commentID)
	if comment == nil {
		return fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}
	if comment.UserID != callerID {
		return fmt.Errorf("%w: not the comment author", ErrForbidden)
	}
	comment.Message = message
	p.RecomputeCommentCount()
	return nil
}

// EditReply replaces the message of the caller's own reply under the given
// parent comment.
func (p *Post) EditReply(callerID, parentCommentID, replyID, message string) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	parent := p.findComment(parentCommentID)
	if parent == nil {
		return fmt.Errorf("%w: comment %s", ErrNotFound, parentCommentID)
	}
	reply := findReply(parent, replyID)
	if reply == nil {
		return fmt.Errorf("%w: reply %s", ErrNotFound, replyID)
	}
	if reply.UserID != callerID {
		return fmt.Errorf("%w: not the reply author", ErrForbidden)
	}
	reply.Message = message
	p.RecomputeCommentCount()
	return nil
}

// DeleteComment removes the caller's own comment, preserving the order of the
// remaining sequence.
func (p *Post) DeleteComment(callerID, commentID string) error {
	idx := p.findCommentIndex(commentID)
	if idx < 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}
	if p.Comments[idx].UserID != callerID {
		return fmt.Errorf("%w: not the comment author", ErrForbidden)
	}
	p.Comments = append(p.Comments[:idx], p.Comments[idx+1:]...)
	p.RecomputeCommentCount()
	return nil
}

// DeleteReply removes the caller's own reply under the given parent comment.
// TotalComments is unaffected because replies are not counted.
func (p *Post) DeleteReply(callerID, parentCommentID, replyID string) error {
	parent := p.findComment(parentCommentID)
	if parent == nil {
		return fmt.Errorf("%w: comment %s", ErrNotFound, parentCommentID)
	}
	idx := -1
	for i := range parent.ReplyComment {
		if parent.ReplyComment[i].ID == replyID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: reply %s", ErrNotFound, replyID)
	}
	if parent.ReplyComment[idx].UserID != callerID {
		return fmt.Errorf("%w: not the reply author", ErrForbidden)
	}
	parent.ReplyComment = append(parent.ReplyComment[:idx], parent.ReplyComment[idx+1:]...)
	p.RecomputeCommentCount()
	return nil
}

// RecomputeCommentCount re-derives TotalComments from the top-level comment
// sequence. It must run as the final step of every mutating operation before
// the aggregate is persisted, and is idempotent.
func (p *Post) RecomputeCommentCount() {
	p.TotalComments = len(p.Comments)
}

func (p *Post) findComment(id string) *Comment {
	if idx := p.findCommentIndex(id); idx >= 0 {
		return &p.Comments[idx]
	}
	return nil
}

func (p *Post) findCommentIndex(id string) int {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return i
		}
	}
	return -1
}

func findReply(parent *Comment, id string) *Reply {
	for i := range parent.ReplyComment {
		if parent.ReplyComment[i].ID == id {
			return &parent.ReplyComment[i]
		}
	}
	return nil
}
