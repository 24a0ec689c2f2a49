package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"instaroom/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.ApifyConfig{
		Token:   "test-token",
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}
	c, err := NewClient(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(config.ApifyConfig{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestParsePostCarousel(t *testing.T) {
	p := parsePost(apifyPost{
		Caption:    "studio day #music #guitar",
		Images:     []string{"https://cdn/img1.jpg", "", "https://cdn/img2.jpg"},
		DisplayURL: "https://cdn/display.jpg",
		LikesCount: 120,
	})

	if len(p.ImageURLs) != 2 {
		t.Fatalf("got %d image URLs, want 2 (empty entries dropped, display URL unused)", len(p.ImageURLs))
	}
	if p.ImageURLs[0] != "https://cdn/img1.jpg" {
		t.Errorf("first image = %q", p.ImageURLs[0])
	}
	if len(p.Hashtags) != 2 || p.Hashtags[0] != "#music" {
		t.Errorf("hashtags extracted from caption = %v", p.Hashtags)
	}
}

func TestParsePostSingleImage(t *testing.T) {
	p := parsePost(apifyPost{
		DisplayURL: "https://cdn/display.jpg",
		Hashtags:   []string{"#travel"},
		Type:       "Video",
	})

	if len(p.ImageURLs) != 1 || p.ImageURLs[0] != "https://cdn/display.jpg" {
		t.Errorf("image URLs = %v, want display URL fallback", p.ImageURLs)
	}
	if !p.IsVideo {
		t.Error("type Video should set IsVideo")
	}
	if len(p.Hashtags) != 1 || p.Hashtags[0] != "#travel" {
		t.Errorf("provided hashtags should win over caption extraction: %v", p.Hashtags)
	}
}

func TestFetchDistinguishesErrorCategories(t *testing.T) {
	tests := []struct {
		name         string
		profileItems string
		postItems    string
		wantErr      error
	}{
		{"private account", "[]", "[]", ErrProfileUnavailable},
		{"no posts", `[{"username":"ghost"}]`, "[]", ErrNoPosts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				call++
				if call == 1 {
					fmt.Fprint(w, tt.profileItems)
					return
				}
				fmt.Fprint(w, tt.postItems)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			_, err := c.Fetch(context.Background(), "someone")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchSuccess(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			fmt.Fprint(w, `[{"username":"natgeo","biography":"Nature","followersCount":280000000,"postsCount":30000}]`)
			return
		}
		fmt.Fprint(w, `[
			{"caption":"wolves #wild","displayUrl":"https://cdn/wolf.jpg","likesCount":5000,"type":"Image"},
			{"caption":"ocean","images":["https://cdn/o1.jpg","https://cdn/o2.jpg"],"likesCount":9000,"type":"Sidecar"}
		]`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Fetch(context.Background(), "natgeo")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Profile.Username != "natgeo" {
		t.Errorf("username = %q", res.Profile.Username)
	}
	if len(res.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(res.Posts))
	}
	if len(res.Posts[1].ImageURLs) != 2 {
		t.Errorf("carousel post should keep both images: %v", res.Posts[1].ImageURLs)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actor exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Fetch(context.Background(), "anyone")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrProfileUnavailable) || errors.Is(err, ErrNoPosts) {
		t.Errorf("transport errors must not map to data-error categories: %v", err)
	}
}
