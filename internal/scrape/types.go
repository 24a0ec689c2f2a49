package scrape

import "time"

// Post is one scraped Instagram post.
type Post struct {
	ImageURLs []string  `json:"image_urls"`
	VideoURL  string    `json:"video_url,omitempty"`
	Caption   string    `json:"caption"`
	Hashtags  []string  `json:"hashtags"`
	Likes     int       `json:"likes"`
	Date      time.Time `json:"date"`
	Location  string    `json:"location,omitempty"`
	IsVideo   bool      `json:"is_video"`
}

// Profile is the scraped account record.
type Profile struct {
	Username      string `json:"username"`
	Biography     string `json:"biography"`
	ProfilePicURL string `json:"profile_pic_url"`
	FollowerCount int    `json:"follower_count"`
	PostCount     int    `json:"post_count"`
}

// Result bundles a profile with its recent posts.
type Result struct {
	Profile Profile `json:"profile"`
	Posts   []Post  `json:"posts"`
}
