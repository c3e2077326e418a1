package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	fake := newFakeStore()
	fake.users["u1"] = store.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}
	fake.users["u2"] = store.User{ID: "u2", Name: "Bob", Email: "bob@example.com"}

	svc := newTestService(fake)
	ts := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(ts.Close)
	return ts, fake
}

func tokenFor(t *testing.T, userID string) string {
	token, err := auth.IssueToken("test-secret", userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return token
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("expected ok true, got %v", body)
	}
}

func TestCreatePostRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/posts", "", map[string]any{"title": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["code"] != "UNAUTHENTICATED" {
		t.Errorf("expected UNAUTHENTICATED code, got %v", body["code"])
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/posts", "garbage-token", map[string]any{"title": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestPostAndCommentFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken := tokenFor(t, "u1")
	bobToken := tokenFor(t, "u2")

	// Alice publishes a post.
	resp, created := doJSON(t, http.MethodPost, ts.URL+"/api/posts", aliceToken, map[string]any{
		"title":   "Hello world",
		"content": "First post",
		"publish": "published",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d (%v)", resp.StatusCode, created)
	}
	postID, _ := created["id"].(string)
	if postID == "" {
		t.Fatalf("no post id in response: %v", created)
	}

	// Anyone can read it.
	resp, fetched := doJSON(t, http.MethodGet, ts.URL+"/api/posts/"+postID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get post: expected 200, got %d", resp.StatusCode)
	}
	if fetched["title"] != "Hello world" {
		t.Errorf("wrong post: %v", fetched["title"])
	}

	// Bob comments.
	resp, commented := doJSON(t, http.MethodPost, ts.URL+"/api/posts/"+postID+"/comments", bobToken, map[string]any{
		"message": "nice one",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add comment: expected 201, got %d (%v)", resp.StatusCode, commented)
	}
	if commented["totalComments"] != float64(1) {
		t.Errorf("expected totalComments 1, got %v", commented["totalComments"])
	}
	comment, _ := commented["comment"].(map[string]any)
	commentID, _ := comment["id"].(string)
	if commentID == "" {
		t.Fatalf("no comment id: %v", commented)
	}

	// Alice cannot edit Bob's comment.
	commentURL := fmt.Sprintf("%s/api/posts/%s/comments/%s", ts.URL, postID, commentID)
	resp, body := doJSON(t, http.MethodPut, commentURL, aliceToken, map[string]any{"message": "rewritten"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign edit: expected 403, got %d (%v)", resp.StatusCode, body)
	}

	// Bob edits his own.
	resp, _ = doJSON(t, http.MethodPut, commentURL, bobToken, map[string]any{"message": "even nicer"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own edit: expected 200, got %d", resp.StatusCode)
	}

	// Bob replies to himself, then deletes the comment.
	resp, replied := doJSON(t, http.MethodPost, commentURL+"/replies", bobToken, map[string]any{
		"message": "following up", "tagUser": "Alice",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add reply: expected 201, got %d (%v)", resp.StatusCode, replied)
	}
	if replied["totalComments"] != float64(1) {
		t.Errorf("replies must not count, got %v", replied["totalComments"])
	}

	resp, deleted := doJSON(t, http.MethodDelete, commentURL, bobToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete comment: expected 200, got %d", resp.StatusCode)
	}
	if deleted["totalComments"] != float64(0) {
		t.Errorf("expected totalComments 0 after delete, got %v", deleted["totalComments"])
	}
}

func TestDraftHiddenOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken := tokenFor(t, "u1")
	bobToken := tokenFor(t, "u2")

	resp, created := doJSON(t, http.MethodPost, ts.URL+"/api/posts", aliceToken, map[string]any{
		"title": "Secret draft",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create draft: expected 201, got %d", resp.StatusCode)
	}
	postID := created["id"].(string)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/posts/"+postID, bobToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign draft read: expected 404, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/posts/"+postID, aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner draft read: expected 200, got %d", resp.StatusCode)
	}
}

func TestViewCounterIsPublic(t *testing.T) {
	ts, _ := newTestServer(t)
	aliceToken := tokenFor(t, "u1")

	_, created := doJSON(t, http.MethodPost, ts.URL+"/api/posts", aliceToken, map[string]any{
		"title": "Counted", "publish": "published",
	})
	postID := created["id"].(string)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/posts/"+postID+"/view", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("view: expected 200, got %d", resp.StatusCode)
	}
	if body["totalViews"] != float64(1) {
		t.Errorf("expected totalViews 1, got %v", body["totalViews"])
	}

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/posts/"+postID+"/share", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share: expected 200, got %d", resp.StatusCode)
	}
	if body["totalShares"] != float64(1) {
		t.Errorf("expected totalShares 1, got %v", body["totalShares"])
	}
}
