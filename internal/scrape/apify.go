// Package scrape fetches Instagram profile and post data through the Apify
// instagram-scraper actor.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"instaroom/internal/config"
)

const actorID = "apify~instagram-scraper"

// recentPostLimit controls how many posts one run looks at.
const recentPostLimit = 10

var (
	// ErrProfileUnavailable means the account is private or does not exist.
	ErrProfileUnavailable = errors.New("scrape: profile unavailable (private or nonexistent)")
	// ErrNoPosts means the profile resolved but returned no posts.
	ErrNoPosts = errors.New("scrape: profile has no posts")
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

// Client talks to the Apify actor API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a scraping client. A missing token is a configuration
// error and fails here.
func NewClient(cfg config.ApifyConfig, log *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("scrape: APIFY_API_TOKEN is not set")
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.Named("scrape"),
	}, nil
}

// apifyPost is the actor's wire shape for one post item.
type apifyPost struct {
	Caption      string    `json:"caption"`
	Images       []string  `json:"images"`
	DisplayURL   string    `json:"displayUrl"`
	VideoURL     string    `json:"videoUrl"`
	Hashtags     []string  `json:"hashtags"`
	LikesCount   int       `json:"likesCount"`
	Timestamp    time.Time `json:"timestamp"`
	LocationName string    `json:"locationName"`
	Type         string    `json:"type"`
}

// apifyProfile is the actor's wire shape for a profile details item.
type apifyProfile struct {
	Username       string `json:"username"`
	Biography      string `json:"biography"`
	ProfilePicURL  string `json:"profilePicUrl"`
	FollowersCount int    `json:"followersCount"`
	PostsCount     int    `json:"postsCount"`
}

type runInput struct {
	DirectURLs   []string `json:"directUrls"`
	ResultsType  string   `json:"resultsType"`
	ResultsLimit int      `json:"resultsLimit"`
}

// Fetch scrapes a profile's details and its recent posts. It distinguishes
// "account private or nonexistent" from "account has no posts".
func (c *Client) Fetch(ctx context.Context, username string) (Result, error) {
	profileURL := fmt.Sprintf("https://www.instagram.com/%s/", username)

	c.log.Info("scraping profile", zap.String("username", username))

	var profiles []apifyProfile
	if err := c.runActor(ctx, runInput{
		DirectURLs:   []string{profileURL},
		ResultsType:  "details",
		ResultsLimit: 1,
	}, &profiles); err != nil {
		return Result{}, fmt.Errorf("scrape profile details for %q: %w", username, err)
	}
	if len(profiles) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrProfileUnavailable, username)
	}

	var rawPosts []apifyPost
	if err := c.runActor(ctx, runInput{
		DirectURLs:   []string{profileURL},
		ResultsType:  "posts",
		ResultsLimit: recentPostLimit,
	}, &rawPosts); err != nil {
		return Result{}, fmt.Errorf("scrape posts for %q: %w", username, err)
	}
	if len(rawPosts) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoPosts, username)
	}

	posts := make([]Post, 0, len(rawPosts))
	for _, raw := range rawPosts {
		posts = append(posts, parsePost(raw))
	}

	c.log.Info("scrape complete",
		zap.String("username", username), zap.Int("posts", len(posts)))

	return Result{
		Profile: parseProfile(profiles[0]),
		Posts:   posts,
	}, nil
}

// runActor calls the actor's synchronous run endpoint and decodes the dataset
// items into out.
func (c *Client) runActor(ctx context.Context, input runInput, out any) error {
	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, actorID, url.QueryEscape(c.token))

	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal run input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("actor run failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read actor response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("actor run status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode dataset items: %w", err)
	}
	return nil
}

func parsePost(raw apifyPost) Post {
	imageURLs := make([]string, 0, len(raw.Images))
	for _, img := range raw.Images {
		if img != "" {
			imageURLs = append(imageURLs, img)
		}
	}
	// Carousel items carry an images array; single posts only a display URL.
	if len(imageURLs) == 0 && raw.DisplayURL != "" {
		imageURLs = []string{raw.DisplayURL}
	}

	hashtags := raw.Hashtags
	if len(hashtags) == 0 {
		hashtags = hashtagPattern.FindAllString(raw.Caption, -1)
	}

	return Post{
		ImageURLs: imageURLs,
		VideoURL:  raw.VideoURL,
		Caption:   raw.Caption,
		Hashtags:  hashtags,
		Likes:     raw.LikesCount,
		Date:      raw.Timestamp,
		Location:  raw.LocationName,
		IsVideo:   raw.Type == "Video",
	}
}

func parseProfile(raw apifyProfile) Profile {
	return Profile{
		Username:      raw.Username,
		Biography:     raw.Biography,
		ProfilePicURL: raw.ProfilePicURL,
		FollowerCount: raw.FollowersCount,
		PostCount:     raw.PostsCount,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
