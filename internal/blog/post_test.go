package blog

import (
	"errors"
	"testing"
	"time"
)

func TestNewPostDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	post, err := NewPost("post-1", "u1", Author{Name: "Alice", AvatarURL: "a.png"}, Input{Title: "Hello"}, now)
	if err != nil {
		t.Fatalf("NewPost failed: %v", err)
	}

	if post.Publish != PublishDraft {
		t.Errorf("expected draft default, got %s", post.Publish)
	}
	if post.TotalViews != 0 || post.TotalShares != 0 || post.TotalComments != 0 || post.TotalFavorites != 0 {
		t.Error("expected all counters initialized to zero")
	}
	if post.Comments == nil || len(post.Comments) != 0 {
		t.Error("expected empty non-nil comment sequence")
	}
	if post.Tags == nil || post.MetaKeywords == nil {
		t.Error("expected empty non-nil tag slices")
	}
	if post.Author.Name != "Alice" {
		t.Errorf("author snapshot not captured: %+v", post.Author)
	}
}

func TestNewPostValidation(t *testing.T) {
	now := time.Now()

	if _, err := NewPost("p", "u1", Author{}, Input{}, now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing title, got %v", err)
	}
	if _, err := NewPost("p", "u1", Author{}, Input{Title: "x", Publish: "archived"}, now); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad publish state, got %v", err)
	}
	if _, err := NewPost("p", "u1", Author{}, Input{Title: "x", Publish: PublishPublished}, now); err != nil {
		t.Errorf("published on create should be allowed: %v", err)
	}
}

func TestApplyPatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	post, _ := NewPost("p", "u1", Author{Name: "Alice"}, Input{
		Title:       "Original",
		Description: "desc",
		Tags:        []string{"go"},
	}, now)

	title := "Updated"
	tags := []string{"go", "web"}
	later := now.Add(time.Hour)
	post.ApplyPatch(Patch{Title: &title, Tags: &tags}, later)

	if post.Title != "Updated" {
		t.Errorf("title not patched: %s", post.Title)
	}
	if post.Description != "desc" {
		t.Errorf("absent field must stay untouched: %s", post.Description)
	}
	if len(post.Tags) != 2 {
		t.Errorf("tags not patched: %v", post.Tags)
	}
	if !post.UpdatedAt.Equal(later) {
		t.Errorf("updatedAt not bumped: %v", post.UpdatedAt)
	}
}

func TestSetPublish(t *testing.T) {
	post, _ := NewPost("p", "u1", Author{}, Input{Title: "x"}, time.Now())

	if err := post.SetPublish(PublishPublished); err != nil {
		t.Fatalf("SetPublish failed: %v", err)
	}
	if post.Publish != PublishPublished {
		t.Errorf("expected published, got %s", post.Publish)
	}
	if err := post.SetPublish("retracted"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if post.Publish != PublishPublished {
		t.Error("failed SetPublish must not change state")
	}
}

func TestAddFavorite(t *testing.T) {
	post, _ := NewPost("p", "u1", Author{}, Input{Title: "x"}, time.Now())

	post.AddFavorite(FavoritePerson{Name: "Bob"})
	post.AddFavorite(FavoritePerson{Name: "Carol", AvatarURL: "c.png"})

	if post.TotalFavorites != 2 || len(post.FavoritePerson) != 2 {
		t.Errorf("favorites not recorded: %d/%d", post.TotalFavorites, len(post.FavoritePerson))
	}
}
