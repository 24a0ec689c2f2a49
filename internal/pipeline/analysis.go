package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"instaroom/internal/gemini"
	"instaroom/internal/scrape"
)

// ErrNoAnalyzablePosts is returned when every post was skipped or failed
// analysis. At least one successful analysis is required to proceed.
var ErrNoAnalyzablePosts = errors.New("no posts could be analyzed")

const analysisPrompt = `You are an expert visual analyst. Analyze this Instagram post and extract structured information.

Context provided by the poster:
- Caption: %s
- Hashtags: %s
- Location: %s

Analyze the image(s) and return a JSON object with these fields:

- objects: list of notable physical objects in the image. For each object provide:
  - name: lowercase snake_case identifier (e.g. "acoustic_guitar", "orange_cat")
  - prominence: "center" if it's a main subject, "background" if visible but not focal, "minor" if barely visible
  - description: brief visual description (color, style, condition)
- scene: information about the setting:
  - location_type: e.g. "bedroom", "cafe", "beach", "studio", "outdoors", "kitchen"
  - mood: list of mood descriptors (e.g. ["warm", "cozy", "intimate"])
  - lighting: one of "natural", "golden_hour", "artificial", "dark", "bright", "neon", "soft"
  - color_palette: list of 3-5 dominant hex colors
- people: information about people in the image:
  - count: number of people visible
  - is_selfie: true if this appears to be a selfie
  - activity: what the person is doing (empty if no people)
- emotional_weight: 1-5 scale of how emotionally significant this post appears (5 = deeply personal/meaningful, 1 = casual/mundane)
- frame_worthy: true if this image would look good as a framed photo on a wall (good composition, aesthetic appeal, personal significance)
- frame_reason: brief explanation of why this image is or isn't frame-worthy

Focus on physical objects that could be placed in a room to represent this person's identity.
If this is a video thumbnail, analyze whatever is visible in the still frame.
If multiple images are provided (carousel post), analyze them holistically as a single post.`

// analyzePosts runs per-post analysis with bounded parallelism. A failed or
// skipped post never aborts the others; the caller gates on at least one
// success.
func (p *Pipeline) analyzePosts(ctx context.Context, posts []scrape.Post) ([]PostObservation, error) {
	if len(posts) == 0 {
		return nil, ErrNoAnalyzablePosts
	}

	// Each goroutine writes its own slot, so no lock is needed.
	results := make([]*PostObservation, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.analysisConcurrency)

	for i, post := range posts {
		g.Go(func() error {
			obs, err := p.analyzeOne(gctx, i, post)
			if err != nil {
				p.log.Warn("post analysis failed",
					zap.Int("post", i), zap.Error(err))
				return nil
			}
			results[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var observations []PostObservation
	for _, r := range results {
		if r != nil {
			observations = append(observations, *r)
		}
	}
	p.log.Info("post analysis complete",
		zap.Int("analyzed", len(observations)), zap.Int("total", len(posts)))
	if len(observations) == 0 {
		return nil, ErrNoAnalyzablePosts
	}
	return observations, nil
}

// analyzeOne analyzes a single post. A nil error with a nil observation never
// happens; skip conditions are reported as errors and logged by the caller.
func (p *Pipeline) analyzeOne(ctx context.Context, index int, post scrape.Post) (*PostObservation, error) {
	if len(post.ImageURLs) == 0 {
		if post.IsVideo {
			return nil, errors.New("video post with no thumbnail")
		}
		return nil, errors.New("post has no images")
	}

	images := validOnly(p.fetcher.All(ctx, post.ImageURLs))
	if len(images) == 0 {
		return nil, errors.New("all image downloads failed")
	}

	caption := post.Caption
	if caption == "" {
		caption = "(no caption)"
	}
	hashtags := "(none)"
	if len(post.Hashtags) > 0 {
		hashtags = strings.Join(post.Hashtags, ", ")
	}
	location := post.Location
	if location == "" {
		location = "(unknown)"
	}

	parts := make([]gemini.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, gemini.ImagePart(img, "image/jpeg"))
	}
	parts = append(parts, gemini.TextPart(fmt.Sprintf(analysisPrompt, caption, hashtags, location)))

	var analysis PostAnalysis
	if err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts:       parts,
		Schema:      postAnalysisSchema(),
		Temperature: 0.3,
		Out:         &analysis,
	}); err != nil {
		return nil, fmt.Errorf("analyze post %d: %w", index, err)
	}

	return &PostObservation{
		Analysis:  analysis,
		PostIndex: index,
		Likes:     post.Likes,
		ImageURLs: post.ImageURLs,
		Caption:   post.Caption,
		Hashtags:  post.Hashtags,
	}, nil
}

func validOnly(images [][]byte) [][]byte {
	var out [][]byte
	for _, img := range images {
		if len(img) > 0 {
			out = append(out, img)
		}
	}
	return out
}
