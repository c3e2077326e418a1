package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"inkwell/api/internal/blog"
)

func setupTestCache(t *testing.T) (*PostCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := NewPostCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create post cache: %v", err)
	}
	return c, s
}

func testPost(id string) blog.Post {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	post, _ := blog.NewPost(id, "u1", blog.Author{Name: "Alice"}, blog.Input{Title: "Cached"}, now)
	post.AddComment("c1", blog.CommentAuthor{UserID: "u2", Name: "Bob"}, "hello", now)
	return *post
}

func TestSetAndGet(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	post := testPost("p1")

	if err := c.Set(ctx, post); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Cached" || got.TotalComments != 1 || len(got.Comments) != 1 {
		t.Errorf("cached post does not round-trip: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestEntryExpires(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, testPost("p1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(time.Minute + time.Second)

	if _, err := c.Get(ctx, "p1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, testPost("p1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := c.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Get(ctx, "p1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss after invalidate, got %v", err)
	}

	// Missing keys are fine.
	if err := c.Invalidate(ctx, "never-cached"); err != nil {
		t.Errorf("Invalidate of absent key failed: %v", err)
	}
}
