// Package blog holds the post aggregate: a post together with its embedded
// comment and reply tree, loaded and persisted as one unit.
package blog

import (
	"fmt"
	"time"
)

const (
	PublishDraft     = "draft"
	PublishPublished = "published"
)

// Author is a denormalized snapshot of the writer's display data, captured at
// creation or edit time. It may drift from the live user record afterwards.
type Author struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// FavoritePerson is the display snapshot recorded when someone favorites a post.
type FavoritePerson struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Reply is a second-level comment. Same shape as Comment minus nesting, plus
// an optional mention of another participant.
type Reply struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl"`
	Message   string    `json:"message"`
	TagUser   string    `json:"tagUser,omitempty"`
	PostedAt  time.Time `json:"postedAt"`
}

// Comment is embedded in a Post. The id is a client-style UUID that stays
// stable across edits, independent of any storage-assigned id.
type Comment struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl"`
	Message      string    `json:"message"`
	PostedAt     time.Time `json:"postedAt"`
	ReplyComment []Reply   `json:"replyComment"`
}

// Post is the aggregate root. TotalComments is derived and must equal
// len(Comments) after every mutating save; replies are not counted.
type Post struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	Author          Author           `json:"author"`
	Publish         string           `json:"publish"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Content         string           `json:"content"`
	CoverURL        string           `json:"coverUrl"`
	Tags            []string         `json:"tags"`
	MetaTitle       string           `json:"metaTitle"`
	MetaDescription string           `json:"metaDescription"`
	MetaKeywords    []string         `json:"metaKeywords"`
	TotalViews      int              `json:"totalViews"`
	TotalShares     int              `json:"totalShares"`
	TotalComments   int              `json:"totalComments"`
	TotalFavorites  int              `json:"totalFavorites"`
	FavoritePerson  []FavoritePerson `json:"favoritePerson"`
	Comments        []Comment        `json:"comments"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Input carries the writable content fields for creating a post.
type Input struct {
	Title           string
	Description     string
	Content         string
	CoverURL        string
	Tags            []string
	MetaTitle       string
	MetaDescription string
	MetaKeywords    []string
	Publish         string
}

// Patch is a partial update; nil fields are left untouched. Ownership and
// author re-derivation happen in the caller, never through the patch.
type Patch struct {
	Title           *string
	Description     *string
	Content         *string
	CoverURL        *string
	Tags            *[]string
	MetaTitle       *string
	MetaDescription *string
	MetaKeywords    *[]string
}

// NewPost initializes a post for the given owner with counters at zero and an
// empty comment sequence. Publish defaults to draft.
func NewPost(id, ownerID string, author Author, in Input, now time.Time) (*Post, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	publish := in.Publish
	if publish == "" {
		publish = PublishDraft
	}
	if err := validatePublish(publish); err != nil {
		return nil, err
	}

	return &Post{
		ID:              id,
		UserID:          ownerID,
		Author:          author,
		Publish:         publish,
		Title:           in.Title,
		Description:     in.Description,
		Content:         in.Content,
		CoverURL:        in.CoverURL,
		Tags:            nonNilStrings(in.Tags),
		MetaTitle:       in.MetaTitle,
		MetaDescription: in.MetaDescription,
		MetaKeywords:    nonNilStrings(in.MetaKeywords),
		FavoritePerson:  []FavoritePerson{},
		Comments:        []Comment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// ApplyPatch updates the content fields present in the patch.
func (p *Post) ApplyPatch(patch Patch, now time.Time) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.CoverURL != nil {
		p.CoverURL = *patch.CoverURL
	}
	if patch.Tags != nil {
		p.Tags = nonNilStrings(*patch.Tags)
	}
	if patch.MetaTitle != nil {
		p.MetaTitle = *patch.MetaTitle
	}
	if patch.MetaDescription != nil {
		p.MetaDescription = *patch.MetaDescription
	}
	if patch.MetaKeywords != nil {
		p.MetaKeywords = nonNilStrings(*patch.MetaKeywords)
	}
	p.UpdatedAt = now
}

// SetPublish switches the publication state; state must be draft or published.
func (p *Post) SetPublish(state string) error {
	if err := validatePublish(state); err != nil {
		return err
	}
	p.Publish = state
	return nil
}

// AddFavorite records a favorite with the person's display snapshot.
func (p *Post) AddFavorite(person FavoritePerson) {
	p.FavoritePerson = append(p.FavoritePerson, person)
	p.TotalFavorites = len(p.FavoritePerson)
}

func validatePublish(state string) error {
	if state != PublishDraft && state != PublishPublished {
		return fmt.Errorf("%w: publish must be %q or %q", ErrInvalidInput, PublishDraft, PublishPublished)
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
