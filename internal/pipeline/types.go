// Package pipeline turns a scraped set of social-media posts into a
// persona-driven room scene: per-post analysis, aggregation, spatial prompt
// design, critique-driven image generation, and optional 3D conversion.
package pipeline

import (
	"context"

	"instaroom/internal/gemini"
)

// Prominence classifies how visually dominant an object is within one post.
type Prominence string

const (
	ProminenceCenter     Prominence = "center"
	ProminenceBackground Prominence = "background"
	ProminenceMinor      Prominence = "minor"
)

// DetectedObject is one object extracted from a post image.
type DetectedObject struct {
	Name        string     `json:"name"`
	Prominence  Prominence `json:"prominence"`
	Description string     `json:"description"`
}

// SceneInfo describes the setting of one post.
type SceneInfo struct {
	LocationType string   `json:"location_type"`
	Mood         []string `json:"mood"`
	Lighting     string   `json:"lighting"`
	ColorPalette []string `json:"color_palette"`
}

// PeopleInfo describes people visible in one post.
type PeopleInfo struct {
	Count    int    `json:"count"`
	IsSelfie bool   `json:"is_selfie"`
	Activity string `json:"activity"`
}

// PostAnalysis is the structured output of one per-post model call.
type PostAnalysis struct {
	Objects         []DetectedObject `json:"objects"`
	Scene           SceneInfo        `json:"scene"`
	People          PeopleInfo       `json:"people"`
	EmotionalWeight int              `json:"emotional_weight"`
	FrameWorthy     bool             `json:"frame_worthy"`
	FrameReason     string           `json:"frame_reason"`
}

// PostObservation is a PostAnalysis enriched with post metadata. Immutable
// once produced; the Aggregator is the only later stage that reads these.
type PostObservation struct {
	Analysis  PostAnalysis `json:"analysis"`
	PostIndex int          `json:"post_index"`
	Likes     int          `json:"likes"`
	ImageURLs []string     `json:"image_urls"`
	Caption   string       `json:"caption"`
	Hashtags  []string     `json:"hashtags"`
}

// KeyObject is a canonical, deduplicated object judged important enough to
// appear in the generated room.
type KeyObject struct {
	Name           string  `json:"name"`
	Importance     float64 `json:"importance"`
	Description    string  `json:"description"`
	SourceImageURL string  `json:"source_image_url"`
}

// RoomAtmosphere captures the room's overall look. Mood, lighting and palette
// are derived deterministically; style, window view and time of day come from
// the persona synthesis call.
type RoomAtmosphere struct {
	DominantMood     string   `json:"dominant_mood"`
	DominantLighting string   `json:"dominant_lighting"`
	ColorPalette     []string `json:"color_palette"`
	Style            string   `json:"style"`
	WindowView       string   `json:"window_view"`
	RoomSize         string   `json:"room_size"`
	TimeOfDay        string   `json:"time_of_day"`
}

// AggregatedProfile is the single shared input to all downstream design
// stages. Treated as immutable once produced.
type AggregatedProfile struct {
	PersonaSummary string         `json:"persona_summary"`
	KeyObjects     []KeyObject    `json:"key_objects"`
	Atmosphere     RoomAtmosphere `json:"atmosphere"`
	HashtagThemes  []string       `json:"hashtag_themes"`
}

// LayoutPlan is the full-room layout produced by the layout planner.
type LayoutPlan struct {
	RoomShape           string   `json:"room_shape"`
	WindowPlacement     string   `json:"window_placement"`
	Furniture           []string `json:"furniture"`
	ObjectPlacements    []string `json:"object_placements"`
	VisualFlow          string   `json:"visual_flow"`
	CameraPosition      string   `json:"camera_position"`
	CameraDirection     string   `json:"camera_direction"`
	CameraDirectionBack string   `json:"camera_direction_back"`
	ForwardObjects      []string `json:"forward_objects"`
	BackwardObjects     []string `json:"backward_objects"`
}

// Viewpoint is one camera direction in the dual-view room model.
type Viewpoint string

const (
	ViewForward  Viewpoint = "forward"
	ViewBackward Viewpoint = "backward"
)

// ViewpointPlan is the slice of the room assigned to one camera direction.
type ViewpointPlan struct {
	Direction       Viewpoint `json:"direction"`
	Objects         []string  `json:"objects"`
	CameraDirection string    `json:"camera_direction"`
	Placements      []string  `json:"placements"`
}

// ObjectDetail is one object's camera-perspective description.
type ObjectDetail struct {
	Name                string `json:"name"`
	Placement           string `json:"placement"`
	DetailedDescription string `json:"detailed_description"`
}

// ImageGenPrompt is everything needed to generate one viewpoint's image.
// ReferenceImageMapping keys are 1-based reference slots; values are the
// object name(s) that slot depicts, comma-joined when objects share an image.
type ImageGenPrompt struct {
	Layout                LayoutPlan     `json:"layout"`
	View                  ViewpointPlan  `json:"view"`
	ObjectDetails         []ObjectDetail `json:"object_details"`
	FinalPrompt           string         `json:"final_prompt"`
	ReferenceImageURLs    []string       `json:"reference_image_urls"`
	ReferenceImageMapping map[int]string `json:"reference_image_mapping"`
}

// CritiqueScores is the structured output of one critique call. A nil
// *CritiqueScores means the critique call itself failed, not that the image
// scored badly.
type CritiqueScores struct {
	ObjectPresence           int    `json:"object_presence"`
	ObjectPresenceFeedback   string `json:"object_presence_feedback"`
	AtmosphereMatch          int    `json:"atmosphere_match"`
	AtmosphereMatchFeedback  string `json:"atmosphere_match_feedback"`
	SpatialCoherence         int    `json:"spatial_coherence"`
	SpatialCoherenceFeedback string `json:"spatial_coherence_feedback"`
	OverallQuality           int    `json:"overall_quality"`
	OverallQualityFeedback   string `json:"overall_quality_feedback"`
}

// Average returns the mean of the four sub-scores.
func (c CritiqueScores) Average() float64 {
	return float64(c.ObjectPresence+c.AtmosphereMatch+c.SpatialCoherence+c.OverallQuality) / 4.0
}

// GenerationAttempt records one generation turn. Appended, never mutated.
type GenerationAttempt struct {
	AttemptNumber int             `json:"attempt_number"`
	ImageBase64   string          `json:"image_base64,omitempty"`
	Critique      *CritiqueScores `json:"critique,omitempty"`
	PromptUsed    string          `json:"prompt_used"`
}

// ImageGenResult is one viewpoint's final outcome with full attempt history.
type ImageGenResult struct {
	FinalImageBase64 string              `json:"final_image_base64,omitempty"`
	FinalCritique    *CritiqueScores     `json:"final_critique,omitempty"`
	Attempts         []GenerationAttempt `json:"attempts"`
	TotalAttempts    int                 `json:"total_attempts"`
}

// DualImageGenResult holds both viewpoints. In single-view mode Backward is
// structurally empty, not attempted.
type DualImageGenResult struct {
	Forward  ImageGenResult `json:"forward"`
	Backward ImageGenResult `json:"backward"`
}

// Model is the structured/text generation contract every design stage uses.
// *gemini.Client satisfies it; tests substitute mocks.
type Model interface {
	GenerateJSON(ctx context.Context, call gemini.StructuredCall) error
	GenerateText(ctx context.Context, call gemini.TextCall) (string, error)
}

// SessionOpener opens one multi-turn image session per room.
type SessionOpener interface {
	NewImageSession(ctx context.Context) (gemini.ImageSession, error)
}

// Fetcher downloads reference images. *fetch.Downloader satisfies it.
type Fetcher interface {
	All(ctx context.Context, urls []string) [][]byte
}
