package blog

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPost(t *testing.T) *Post {
	t.Helper()
	post, err := NewPost("post-1", "u1", Author{Name: "Alice"}, Input{Title: "Hello"}, testTime)
	if err != nil {
		t.Fatalf("NewPost failed: %v", err)
	}
	return post
}

func addComment(t *testing.T, p *Post, id, userID, message string) Comment {
	t.Helper()
	c, err := p.AddComment(id, CommentAuthor{UserID: userID, Name: "User " + userID}, message, testTime)
	if err != nil {
		t.Fatalf("AddComment(%s) failed: %v", id, err)
	}
	return c
}

func TestAddComment(t *testing.T) {
	post := newTestPost(t)

	c := addComment(t, post, "c1", "u2", "first!")
	if c.ID != "c1" || c.UserID != "u2" || c.Message != "first!" {
		t.Errorf("unexpected comment: %+v", c)
	}
	if len(c.ReplyComment) != 0 {
		t.Errorf("expected empty reply sequence, got %d", len(c.ReplyComment))
	}
	if post.TotalComments != 1 {
		t.Errorf("expected totalComments 1, got %d", post.TotalComments)
	}

	t.Run("empty message", func(t *testing.T) {
		_, err := post.AddComment("c2", CommentAuthor{UserID: "u2"}, "", testTime)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if post.TotalComments != 1 {
			t.Errorf("failed add must not change totalComments, got %d", post.TotalComments)
		}
	})
}

func TestAddReply(t *testing.T) {
	post := newTestPost(t)
	addComment(t, post, "c1", "u1", "parent")

	reply, err := post.AddReply("c1", "r1", CommentAuthor{UserID: "u2", Name: "Bob"}, "hi", "u1", testTime)
	if err != nil {
		t.Fatalf("AddReply failed: %v", err)
	}
	if reply.TagUser != "u1" {
		t.Errorf("expected tagUser u1, got %s", reply.TagUser)
	}
	if len(post.Comments[0].ReplyComment) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(post.Comments[0].ReplyComment))
	}

	// Replies are not counted.
	if post.TotalComments != 1 {
		t.Errorf("expected totalComments 1 after reply, got %d", post.TotalComments)
	}

	t.Run("missing parent", func(t *testing.T) {
		before := post.TotalComments
		_, err := post.AddReply("nope", "r2", CommentAuthor{UserID: "u2"}, "hi", "", testTime)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if post.TotalComments != before {
			t.Errorf("totalComments changed on failed reply: %d -> %d", before, post.TotalComments)
		}
	})
}

func TestEditComment(t *testing.T) {
	post := newTestPost(t)
	original := addComment(t, post, "c1", "u1", "draft text")

	if err := post.EditComment("u1", "c1", "final text"); err != nil {
		t.Fatalf("EditComment failed: %v", err)
	}
	got := post.Comments[0]
	if got.Message != "final text" {
		t.Errorf("expected edited message, got %q", got.Message)
	}
	if got.ID != original.ID || got.UserID != original.UserID || !got.PostedAt.Equal(original.PostedAt) {
		t.Error("edit must not touch id, author or postedAt")
	}

	t.Run("not the author", func(t *testing.T) {
		snapshot := clonePost(post)
		err := post.EditComment("u2", "c1", "hijacked")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if !reflect.DeepEqual(snapshot, clonePost(post)) {
			t.Error("forbidden edit must leave the tree unchanged")
		}
	})

	t.Run("missing comment", func(t *testing.T) {
		if err := post.EditComment("u1", "ghost", "text"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestEditReply(t *testing.T) {
	post := newTestPost(t)
	addComment(t, post, "c1", "u1", "parent")
	if _, err := post.AddReply("c1", "r1", CommentAuthor{UserID: "u2"}, "original", "", testTime); err != nil {
		t.Fatalf("AddReply failed: %v", err)
	}

	if err := post.EditReply("u2", "c1", "r1", "edited"); err != nil {
		t.Fatalf("EditReply failed: %v", err)
	}
	if post.Comments[0].ReplyComment[0].Message != "edited" {
		t.Errorf("reply not edited: %q", post.Comments[0].ReplyComment[0].Message)
	}

	t.Run("ownership is checked on the reply author", func(t *testing.T) {
		// u1 owns the parent comment but not the reply.
		if err := post.EditReply("u1", "c1", "r1", "nope"); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("missing reply", func(t *testing.T) {
		if err := post.EditReply("u2", "c1", "ghost", "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeleteComment(t *testing.T) {
	post := newTestPost(t)
	addComment(t, post, "c1", "u1", "one")
	addComment(t, post, "c2", "u2", "two")
	addComment(t, post, "c3", "u1", "three")

	if err := post.DeleteComment("u2", "c2"); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}
	if post.TotalComments != 2 {
		t.Errorf("expected totalComments 2, got %d", post.TotalComments)
	}
	// Remaining order is preserved.
	if post.Comments[0].ID != "c1" || post.Comments[1].ID != "c3" {
		t.Errorf("order not preserved: %s, %s", post.Comments[0].ID, post.Comments[1].ID)
	}

	t.Run("foreign comment is forbidden and untouched", func(t *testing.T) {
		snapshot := clonePost(post)
		err := post.DeleteComment("u2", "c1")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if !reflect.DeepEqual(snapshot, clonePost(post)) {
			t.Error("forbidden delete must leave the tree unchanged")
		}
	})
}

func TestDeleteReply(t *testing.T) {
	post := newTestPost(t)
	addComment(t, post, "c1", "u1", "parent")
	post.AddReply("c1", "r1", CommentAuthor{UserID: "u2"}, "a", "", testTime)
	post.AddReply("c1", "r2", CommentAuthor{UserID: "u3"}, "b", "", testTime)

	if err := post.DeleteReply("u2", "c1", "r1"); err != nil {
		t.Fatalf("DeleteReply failed: %v", err)
	}
	replies := post.Comments[0].ReplyComment
	if len(replies) != 1 || replies[0].ID != "r2" {
		t.Errorf("unexpected replies after delete: %+v", replies)
	}
	if post.TotalComments != 1 {
		t.Errorf("deleting a reply must not change totalComments, got %d", post.TotalComments)
	}

	t.Run("not the reply author", func(t *testing.T) {
		if err := post.DeleteReply("u2", "c1", "r2"); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestCommentRoundTrip(t *testing.T) {
	post := newTestPost(t)

	c, err := post.AddComment("c1", CommentAuthor{UserID: "u1"}, "hello", testTime)
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if err := post.EditComment("u1", c.ID, "hello, edited"); err != nil {
		t.Fatalf("EditComment failed: %v", err)
	}
	if err := post.DeleteComment("u1", c.ID); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}

	if len(post.Comments) != 0 || post.TotalComments != 0 {
		t.Errorf("round trip must return to zero comments, got %d/%d", len(post.Comments), post.TotalComments)
	}
}

func TestTotalCommentsInvariant(t *testing.T) {
	post := newTestPost(t)

	check := func(step string) {
		t.Helper()
		if post.TotalComments != len(post.Comments) {
			t.Fatalf("%s: totalComments %d != len(comments) %d", step, post.TotalComments, len(post.Comments))
		}
	}

	addComment(t, post, "c1", "u1", "a")
	check("add c1")
	addComment(t, post, "c2", "u2", "b")
	check("add c2")
	post.AddReply("c1", "r1", CommentAuthor{UserID: "u2"}, "reply", "", testTime)
	check("add reply")
	post.EditComment("u1", "c1", "a2")
	check("edit c1")
	post.DeleteReply("u2", "c1", "r1")
	check("delete reply")
	post.DeleteComment("u2", "c2")
	check("delete c2")
}

func TestRecomputeCommentCountIdempotent(t *testing.T) {
	post := newTestPost(t)
	addComment(t, post, "c1", "u1", "a")

	post.RecomputeCommentCount()
	first := post.TotalComments
	post.RecomputeCommentCount()
	if post.TotalComments != first {
		t.Errorf("recompute not idempotent: %d then %d", first, post.TotalComments)
	}
}

func TestDuplicateIDFirstMatchWins(t *testing.T) {
	post := newTestPost(t)
	// A client bug produced two comments with the same id.
	addComment(t, post, "dup", "u1", "first")
	addComment(t, post, "dup", "u2", "second")

	if err := post.EditComment("u1", "dup", "edited"); err != nil {
		t.Fatalf("EditComment failed: %v", err)
	}
	if post.Comments[0].Message != "edited" || post.Comments[1].Message != "second" {
		t.Error("edit must hit the first match only")
	}

	if err := post.DeleteComment("u1", "dup"); err != nil {
		t.Fatalf("DeleteComment failed: %v", err)
	}
	if len(post.Comments) != 1 || post.Comments[0].UserID != "u2" {
		t.Error("delete must remove the first match only")
	}
}

// clonePost deep-copies the aggregate so unchanged trees can be compared
// structurally after a rejected mutation.
func clonePost(p *Post) Post {
	clone := *p
	clone.Comments = make([]Comment, len(p.Comments))
	for i, c := range p.Comments {
		cc := c
		cc.ReplyComment = append([]Reply(nil), c.ReplyComment...)
		clone.Comments[i] = cc
	}
	clone.Tags = append([]string(nil), p.Tags...)
	clone.MetaKeywords = append([]string(nil), p.MetaKeywords...)
	clone.FavoritePerson = append([]FavoritePerson(nil), p.FavoritePerson...)
	return clone
}
