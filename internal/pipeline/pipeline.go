package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"instaroom/internal/config"
	"instaroom/internal/scrape"
	"instaroom/internal/worldlabs"
)

// SceneConverter turns final room image(s) into a 3D scene. *worldlabs.Client
// satisfies it.
type SceneConverter interface {
	Convert(ctx context.Context, req worldlabs.ConvertRequest) (*worldlabs.SceneResult, error)
}

// Options selects per-run behavior.
type Options struct {
	// OutputDir receives debug artifacts; empty disables them.
	OutputDir string
	// DualView generates opposing forward/backward views of the room.
	DualView bool
	// ConvertTo3D runs scene conversion after image generation. Requires a
	// converter to be configured; its failure degrades to a nil Scene.
	ConvertTo3D bool
}

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID   string             `json:"run_id"`
	Images  DualImageGenResult `json:"images"`
	Profile AggregatedProfile  `json:"profile"`
	// Scene is non-nil only when 3D conversion was requested and succeeded.
	Scene *worldlabs.SceneResult `json:"scene,omitempty"`
}

// Pipeline executes the five content-generation stages for one account.
// Stage order is fixed. Safe for concurrent runs: all per-run state lives in
// Run's frame.
type Pipeline struct {
	model               Model
	sessions            SessionOpener
	fetcher             Fetcher
	converter           SceneConverter
	analysisConcurrency int
	log                 *zap.Logger
}

// New wires a pipeline. converter may be nil when 3D conversion is never
// requested.
func New(model Model, sessions SessionOpener, fetcher Fetcher, converter SceneConverter, cfg config.PipelineConfig, log *zap.Logger) *Pipeline {
	concurrency := cfg.AnalysisConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		model:               model,
		sessions:            sessions,
		fetcher:             fetcher,
		converter:           converter,
		analysisConcurrency: concurrency,
		log:                 log.Named("pipeline"),
	}
}

// Run executes the full pipeline for one scraped account.
//
// Fatal errors are upstream data errors (nothing analyzable) and image
// session failures. Design-stage call failures degrade to documented
// defaults, and 3D conversion failure degrades to a nil Scene with the 2D
// result intact.
func (p *Pipeline) Run(ctx context.Context, scraped scrape.Result, opts Options) (*RunResult, error) {
	runID := uuid.NewString()
	username := scraped.Profile.Username
	log := p.log.With(zap.String("username", username), zap.String("run_id", runID))

	// Stage 1: per-post analysis.
	log.Info("analyzing posts", zap.Int("posts", len(scraped.Posts)))
	observations, err := p.analyzePosts(ctx, scraped.Posts)
	if err != nil {
		return nil, fmt.Errorf("analyze posts for @%s: %w", username, err)
	}

	// Stage 2: aggregation into a persona profile.
	profile := p.aggregateAnalyses(ctx, observations, scraped.Profile)
	log.Info("profile aggregated",
		zap.Int("key_objects", len(profile.KeyObjects)),
		zap.String("style", profile.Atmosphere.Style))

	// Stage 3: layout, then per-viewpoint design (parallel across views).
	layout := p.planLayout(ctx, profile, opts.DualView)
	views := viewpointPlans(layout, profile, opts.DualView)

	prompts := make([]ImageGenPrompt, len(views))
	g, gctx := errgroup.WithContext(ctx)
	for i, view := range views {
		g.Go(func() error {
			prompts[i] = p.designViewPrompt(gctx, profile, layout, view)
			return nil
		})
	}
	_ = g.Wait() // design goroutines degrade internally, never error
	log.Info("prompts designed", zap.Int("viewpoints", len(prompts)))

	// Stage 4: image generation with critique loop.
	images, err := p.generateViews(ctx, profile, prompts)
	if err != nil {
		return nil, fmt.Errorf("generate images for @%s: %w", username, err)
	}

	p.saveDebugArtifacts(opts.OutputDir, runID, scraped, observations, profile, prompts, images)

	result := &RunResult{
		RunID:   runID,
		Images:  images,
		Profile: profile,
	}

	// Stage 5: optional 3D conversion. Never fails the run.
	if opts.ConvertTo3D {
		result.Scene = p.convertScene(ctx, username, profile, layout, images)
	}
	return result, nil
}

// convertScene drives the 3D conversion stage. Any failure is logged and
// absorbed; the 2D result stands on its own.
func (p *Pipeline) convertScene(ctx context.Context, username string, profile AggregatedProfile, layout LayoutPlan, images DualImageGenResult) *worldlabs.SceneResult {
	if p.converter == nil {
		p.log.Warn("3D conversion requested but no converter configured")
		return nil
	}

	payloads := decodeFinalImages(images)
	if len(payloads) == 0 {
		p.log.Warn("3D conversion skipped: no final images")
		return nil
	}

	scene, err := p.converter.Convert(ctx, worldlabs.ConvertRequest{
		Images:      payloads,
		TextPrompt:  p.spatialScenePrompt(ctx, profile, layout),
		Quality:     worldlabs.QualityMini,
		DisplayName: fmt.Sprintf("@%s room", username),
		Tags:        []string{"instaroom", username},
	})
	if err != nil {
		p.log.Error("3D conversion failed", zap.Error(err))
		return nil
	}
	p.log.Info("3D scene ready", zap.String("world_id", scene.WorldID))
	return scene
}

// decodeFinalImages returns the decodable final images, forward first.
func decodeFinalImages(images DualImageGenResult) [][]byte {
	var out [][]byte
	for _, b64 := range []string{images.Forward.FinalImageBase64, images.Backward.FinalImageBase64} {
		if b64 == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(data) == 0 {
			continue
		}
		out = append(out, data)
	}
	return out
}
