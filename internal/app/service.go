package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/blog"
	"inkwell/api/internal/cache"
	"inkwell/api/internal/config"
	"inkwell/api/internal/files"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// Session is the authenticated caller, with the display snapshot used when
// stamping comments and favorites.
type Session struct {
	UserID    string
	Name      string
	Email     string
	AvatarURL string
}

// saveAttempts bounds the reload-and-reapply loop on version conflicts.
const saveAttempts = 3

const presignedURLTTL = 15 * time.Minute

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	InsertPost(context.Context, store.PostRecord) error
	GetPost(context.Context, string) (store.PostRecord, error)
	UpdatePost(context.Context, store.PostRecord) error
	DeletePost(context.Context, string) error
	ListPosts(context.Context, bool, int) ([]store.PostRecord, error)
	ListPostsByUser(context.Context, string) ([]store.PostRecord, error)
	InsertFile(context.Context, store.FileRecord) error
	GetFile(context.Context, string) (store.FileRecord, error)
	DeleteFile(context.Context, string) error
}

type Service struct {
	cfg    config.Config
	store  dataStore
	authpw *authpw.Service
	search *search.Service
	cache  *cache.PostCache
	files  *files.Storage

	smtpConfigured bool

	now         func() time.Time
	newID       func(prefix string) string
	newClientID func() string
}

// New wires the service. search, cache and files may be nil; the features
// they back degrade gracefully.
func New(cfg config.Config, dataStore dataStore, authSvc *authpw.Service, searchSvc *search.Service, postCache *cache.PostCache, fileStorage *files.Storage, smtpConfigured bool) *Service {
	return &Service{
		cfg:            cfg,
		store:          dataStore,
		authpw:         authSvc,
		search:         searchSvc,
		cache:          postCache,
		files:          fileStorage,
		smtpConfigured: smtpConfigured,
		now:            time.Now,
		newID:          util.NewID,
		newClientID:    util.NewClientID,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SMTPConfigured reports whether outgoing email is set up. Handlers use it
// for the dev bypass that returns codes in responses.
func (s *Service) SMTPConfigured() bool {
	return s.smtpConfigured
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// ---- sessions ----

// AuthPayload is the result of a successful sign-in.
type AuthPayload struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SignIn authenticates and issues a bearer token.
func (s *Service) SignIn(ctx context.Context, email, password string) (AuthPayload, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if err != nil {
		return AuthPayload{}, err
	}

	token, err := auth.IssueToken(s.cfg.JWTSecret, user.ID, s.cfg.TokenTTL)
	if err != nil {
		return AuthPayload{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthPayload{
		Token:     token,
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL),
	}, nil
}

// SessionFromToken validates a bearer token and loads the caller's current
// display data. Comments always carry the live snapshot, not the one from
// token issue time.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	userID, err := auth.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("load session user: %w", err)
	}
	return Session{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	}, nil
}

// UserView is the public account shape.
type UserView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	AvatarURL       string     `json:"avatarUrl"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, session Session) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return UserView{}, err
	}
	return UserView{
		ID:              user.ID,
		Name:            user.Name,
		Email:           user.Email,
		AvatarURL:       user.AvatarURL,
		IsEmailVerified: user.IsEmailVerified,
		LastLogin:       user.LastLogin,
		CreatedAt:       user.CreatedAt,
	}, nil
}

// ---- posts ----

func (s *Service) materialize(record store.PostRecord) (*blog.Post, error) {
	var post blog.Post
	if err := json.Unmarshal(record.Doc, &post); err != nil {
		return nil, fmt.Errorf("unmarshal post %s: %w", record.ID, err)
	}
	return &post, nil
}

func (s *Service) authorFor(session Session) blog.Author {
	return blog.Author{Name: session.Name, AvatarURL: session.AvatarURL}
}

// CreatePost creates a post owned by the caller.
func (s *Service) CreatePost(ctx context.Context, session Session, in blog.Input) (*blog.Post, error) {
	now := s.now()
	post, err := blog.NewPost(s.newID("post"), session.UserID, s.authorFor(session), in, now)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(post)
	if err != nil {
		return nil, fmt.Errorf("marshal post: %w", err)
	}
	if err := s.store.InsertPost(ctx, store.PostRecord{
		ID:        post.ID,
		UserID:    post.UserID,
		Publish:   post.Publish,
		Doc:       doc,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	s.syncSearch(post)
	return post, nil
}

// GetPost returns a post. Drafts are visible only to their owner; everyone
// else gets not found rather than a hint that the draft exists.
func (s *Service) GetPost(ctx context.Context, viewerID, postID string) (*blog.Post, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, postID); err == nil {
			if cached.Publish == blog.PublishPublished || cached.UserID == viewerID {
				return &cached, nil
			}
			return nil, blog.ErrNotFound
		}
	}

	record, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, blog.ErrNotFound
		}
		return nil, err
	}
	post, err := s.materialize(record)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// Cache trouble must not break reads.
		_ = s.cache.Set(ctx, *post)
	}

	if post.Publish != blog.PublishPublished && post.UserID != viewerID {
		return nil, blog.ErrNotFound
	}
	return post, nil
}

// ListPosts returns published posts, newest first.
func (s *Service) ListPosts(ctx context.Context, limit int) ([]blog.Post, error) {
	records, err := s.store.ListPosts(ctx, true, limit)
	if err != nil {
		return nil, err
	}
	return s.materializeAll(records)
}

// LatestPosts returns the n most recent published posts.
func (s *Service) LatestPosts(ctx context.Context, n int) ([]blog.Post, error) {
	if n <= 0 {
		n = 5
	}
	return s.ListPosts(ctx, n)
}

// MyPosts returns all of the caller's posts, drafts included.
func (s *Service) MyPosts(ctx context.Context, session Session) ([]blog.Post, error) {
	records, err := s.store.ListPostsByUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return s.materializeAll(records)
}

func (s *Service) materializeAll(records []store.PostRecord) ([]blog.Post, error) {
	posts := make([]blog.Post, 0, len(records))
	for _, record := range records {
		post, err := s.materialize(record)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, nil
}

// SearchPosts runs a full-text search over published posts.
func (s *Service) SearchPosts(q string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}
	}
	return s.search.Search(search.Query{Text: q, Limit: limit, Offset: offset})
}

// mutatePost loads the post, applies fn and saves with a version check. On a
// conflict the whole sequence reruns against the fresh document, so two
// racing comment additions both survive.
func (s *Service) mutatePost(ctx context.Context, postID string, fn func(*blog.Post) error) (*blog.Post, error) {
	for attempt := 0; attempt < saveAttempts; attempt++ {
		record, err := s.store.GetPost(ctx, postID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, blog.ErrNotFound
			}
			return nil, err
		}
		post, err := s.materialize(record)
		if err != nil {
			return nil, err
		}

		if err := fn(post); err != nil {
			return nil, err
		}

		doc, err := json.Marshal(post)
		if err != nil {
			return nil, fmt.Errorf("marshal post: %w", err)
		}
		err = s.store.UpdatePost(ctx, store.PostRecord{
			ID:      post.ID,
			UserID:  post.UserID,
			Publish: post.Publish,
			Doc:     doc,
			Version: record.Version,
		})
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			_ = s.cache.Invalidate(ctx, post.ID)
		}
		s.syncSearch(post)
		return post, nil
	}
	return nil, domainError(http.StatusConflict, "CONFLICT", "Post was modified concurrently, try again", nil)
}

func (s *Service) syncSearch(post *blog.Post) {
	if s.search == nil {
		return
	}
	if post.Publish == blog.PublishPublished {
		s.search.IndexPost(search.PostRecord{
			ID:          post.ID,
			Title:       post.Title,
			Description: post.Description,
			Tags:        post.Tags,
			UserID:      post.UserID,
			AuthorName:  post.Author.Name,
		})
	} else {
		s.search.DeletePost(post.ID)
	}
}

func requireOwner(session Session, post *blog.Post) error {
	if post.UserID != session.UserID {
		return fmt.Errorf("%w: not the post owner", blog.ErrForbidden)
	}
	return nil
}

// UpdatePost patches the caller's own post.
func (s *Service) UpdatePost(ctx context.Context, session Session, postID string, patch blog.Patch) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		if err := requireOwner(session, post); err != nil {
			return err
		}
		post.ApplyPatch(patch, s.now())
		return nil
	})
}

// SetPublish switches the caller's own post between draft and published.
func (s *Service) SetPublish(ctx context.Context, session Session, postID, state string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		if err := requireOwner(session, post); err != nil {
			return err
		}
		return post.SetPublish(state)
	})
}

// DeletePost removes the caller's own post.
func (s *Service) DeletePost(ctx context.Context, session Session, postID string) error {
	record, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return blog.ErrNotFound
		}
		return err
	}
	if record.UserID != session.UserID {
		return fmt.Errorf("%w: not the post owner", blog.ErrForbidden)
	}

	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, postID)
	}
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	return nil
}

// ---- engagement ----

// IncrementViews bumps the view counter. No authentication required.
func (s *Service) IncrementViews(ctx context.Context, postID string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		post.TotalViews++
		return nil
	})
}

// SharePost bumps the share counter. No authentication required.
func (s *Service) SharePost(ctx context.Context, postID string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		post.TotalShares++
		return nil
	})
}

// FavoritePost records the caller's favorite with their display snapshot.
func (s *Service) FavoritePost(ctx context.Context, session Session, postID string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		post.AddFavorite(blog.FavoritePerson{Name: session.Name, AvatarURL: session.AvatarURL})
		return nil
	})
}

// ---- comments ----

func (s *Service) commentAuthor(session Session) blog.CommentAuthor {
	return blog.CommentAuthor{
		UserID:    session.UserID,
		Name:      session.Name,
		AvatarURL: session.AvatarURL,
	}
}

// AddComment appends a top-level comment by the caller.
func (s *Service) AddComment(ctx context.Context, session Session, postID, message string) (*blog.Post, blog.Comment, error) {
	var added blog.Comment
	post, err := s.mutatePost(ctx, postID, func(post *blog.Post) error {
		comment, err := post.AddComment(s.newClientID(), s.commentAuthor(session), message, s.now())
		if err != nil {
			return err
		}
		added = comment
		return nil
	})
	if err != nil {
		return nil, blog.Comment{}, err
	}
	return post, added, nil
}

// EditComment replaces the message of the caller's own comment.
func (s *Service) EditComment(ctx context.Context, session Session, postID, commentID, message string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		return post.EditComment(session.UserID, commentID, message)
	})
}

// DeleteComment removes the caller's own comment with its replies.
func (s *Service) DeleteComment(ctx context.Context, session Session, postID, commentID string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		return post.DeleteComment(session.UserID, commentID)
	})
}

// AddReply appends a reply by the caller under an existing comment.
func (s *Service) AddReply(ctx context.Context, session Session, postID, commentID, message, tagUser string) (*blog.Post, blog.Reply, error) {
	var added blog.Reply
	post, err := s.mutatePost(ctx, postID, func(post *blog.Post) error {
		reply, err := post.AddReply(commentID, s.newClientID(), s.commentAuthor(session), message, tagUser, s.now())
		if err != nil {
			return err
		}
		added = reply
		return nil
	})
	if err != nil {
		return nil, blog.Reply{}, err
	}
	return post, added, nil
}

// EditReply replaces the message of the caller's own reply.
func (s *Service) EditReply(ctx context.Context, session Session, postID, commentID, replyID, message string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		return post.EditReply(session.UserID, commentID, replyID, message)
	})
}

// DeleteReply removes the caller's own reply.
func (s *Service) DeleteReply(ctx context.Context, session Session, postID, commentID, replyID string) (*blog.Post, error) {
	return s.mutatePost(ctx, postID, func(post *blog.Post) error {
		return post.DeleteReply(session.UserID, commentID, replyID)
	})
}

// ---- files ----

// FileView is the upload response, with a time-limited download URL.
type FileView struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	URL          string `json:"url"`
}

// UploadFile stores the object and its metadata row.
func (s *Service) UploadFile(ctx context.Context, session Session, filename, contentType string, size int64, r io.Reader) (FileView, error) {
	if s.files == nil {
		return FileView{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	if filename == "" {
		return FileView{}, fmt.Errorf("%w: filename is required", blog.ErrInvalidInput)
	}

	id := s.newID("file")
	key := session.UserID + "/" + id + path.Ext(filename)
	if err := s.files.Put(ctx, key, r, size, contentType); err != nil {
		return FileView{}, err
	}

	record := store.FileRecord{
		ID:           id,
		UserID:       session.UserID,
		ObjectKey:    key,
		OriginalName: filename,
		MimeType:     contentType,
		SizeBytes:    size,
		CreatedAt:    s.now(),
	}
	if err := s.store.InsertFile(ctx, record); err != nil {
		return FileView{}, err
	}

	url, err := s.files.PresignedGet(ctx, key, filename, presignedURLTTL)
	if err != nil {
		return FileView{}, err
	}
	return FileView{
		ID:           id,
		OriginalName: filename,
		MimeType:     contentType,
		SizeBytes:    size,
		URL:          url,
	}, nil
}

// FileURL returns a fresh presigned URL for a stored file.
func (s *Service) FileURL(ctx context.Context, fileID string) (FileView, error) {
	if s.files == nil {
		return FileView{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	record, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return FileView{}, blog.ErrNotFound
		}
		return FileView{}, err
	}

	url, err := s.files.PresignedGet(ctx, record.ObjectKey, record.OriginalName, presignedURLTTL)
	if err != nil {
		return FileView{}, err
	}
	return FileView{
		ID:           record.ID,
		OriginalName: record.OriginalName,
		MimeType:     record.MimeType,
		SizeBytes:    record.SizeBytes,
		URL:          url,
	}, nil
}

// DeleteFile removes the caller's own file and its object.
func (s *Service) DeleteFile(ctx context.Context, session Session, fileID string) error {
	if s.files == nil {
		return domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	record, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return blog.ErrNotFound
		}
		return err
	}
	if record.UserID != session.UserID {
		return fmt.Errorf("%w: not the file owner", blog.ErrForbidden)
	}

	if err := s.files.Delete(ctx, record.ObjectKey); err != nil {
		return err
	}
	return s.store.DeleteFile(ctx, fileID)
}
