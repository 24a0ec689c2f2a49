package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
)

const (
	critiqueThreshold = 3.5
	maxAttempts       = 2
)

// backwardTransition primes the image session before the backward view's
// first turn so the model reuses the geometry it established going forward.
const backwardTransition = "Now turn the camera 180° to face the opposite direction. " +
	"The room you just created continues behind you — same walls, same floor, " +
	"same style and lighting. You are now looking at the other half of the room. " +
	"Generate this backward view:\n\n"

// generateViews drives image generation for all viewpoints in one multi-turn
// session. The forward view is fully resolved before the backward view
// begins; this ordering carries the room's geometry into the second view and
// must not be parallelized.
func (p *Pipeline) generateViews(ctx context.Context, profile AggregatedProfile, prompts []ImageGenPrompt) (DualImageGenResult, error) {
	refs := p.downloadReferences(ctx, prompts)

	session, err := p.sessions.NewImageSession(ctx)
	if err != nil {
		return DualImageGenResult{}, fmt.Errorf("open image session: %w", err)
	}

	var result DualImageGenResult
	for i, prompt := range prompts {
		transition := ""
		if prompt.View.Direction == ViewBackward {
			transition = backwardTransition
		}
		viewResult := p.generateOneView(ctx, session, prompt, profile, refs[i], transition)
		switch prompt.View.Direction {
		case ViewBackward:
			result.Backward = viewResult
		default:
			result.Forward = viewResult
		}
	}
	return result, nil
}

// downloadReferences fetches every viewpoint's reference images. The fetcher
// bounds download parallelism; failed downloads are dropped.
func (p *Pipeline) downloadReferences(ctx context.Context, prompts []ImageGenPrompt) [][][]byte {
	refs := make([][][]byte, len(prompts))
	for i, prompt := range prompts {
		refs[i] = validOnly(p.fetcher.All(ctx, prompt.ReferenceImageURLs))
	}
	return refs
}

// generateOneView runs the bounded critique-retry loop for one viewpoint.
//
// Per attempt: generate, then critique against this view's own objects. A
// score at or above the threshold accepts immediately. A failed critique call
// also accepts immediately; a missing judge is never a reason to retry. A
// failed generation records an empty attempt and retries with a generic
// refinement message.
func (p *Pipeline) generateOneView(ctx context.Context, session gemini.ImageSession, prompt ImageGenPrompt, profile AggregatedProfile, refImages [][]byte, transition string) ImageGenResult {
	var attempts []GenerationAttempt
	var best *GenerationAttempt

	log := p.log.With(zap.String("view", string(prompt.View.Direction)))

	for attemptNum := 1; attemptNum <= maxAttempts; attemptNum++ {
		var parts []gemini.Part
		var promptText string
		if attemptNum == 1 {
			promptText = transition + prompt.FinalPrompt
			for _, img := range refImages {
				parts = append(parts, gemini.ImagePart(img, "image/jpeg"))
			}
			parts = append(parts, gemini.TextPart(promptText))
		} else {
			var prior *CritiqueScores
			if best != nil {
				prior = best.Critique
			}
			promptText = refinementMessage(prior)
			parts = []gemini.Part{gemini.TextPart(promptText)}
		}

		imageData, err := session.Send(ctx, parts)
		if err != nil || len(imageData) == 0 {
			log.Error("image generation failed",
				zap.Int("attempt", attemptNum), zap.Error(err))
			attempts = append(attempts, GenerationAttempt{
				AttemptNumber: attemptNum,
				PromptUsed:    promptText,
			})
			continue
		}

		critique := p.critiqueImage(ctx, imageData, prompt, profile)
		attempt := GenerationAttempt{
			AttemptNumber: attemptNum,
			ImageBase64:   base64.StdEncoding.EncodeToString(imageData),
			Critique:      critique,
			PromptUsed:    promptText,
		}
		attempts = append(attempts, attempt)

		// A critiqued attempt always beats an uncritiqued one; among
		// critiqued attempts, a strictly higher average wins.
		if best == nil || (critique != nil &&
			(best.Critique == nil || critique.Average() > best.Critique.Average())) {
			best = &attempts[len(attempts)-1]
		}

		if critique == nil {
			log.Warn("critique failed, accepting image",
				zap.Int("attempt", attemptNum))
			break
		}
		if critique.Average() >= critiqueThreshold {
			log.Info("attempt accepted",
				zap.Int("attempt", attemptNum),
				zap.Float64("score", critique.Average()))
			break
		}
		if attemptNum < maxAttempts {
			log.Info("attempt below threshold, refining",
				zap.Int("attempt", attemptNum),
				zap.Float64("score", critique.Average()))
		}
	}

	if best == nil && len(attempts) > 0 {
		best = &attempts[len(attempts)-1]
	}
	result := ImageGenResult{
		Attempts:      attempts,
		TotalAttempts: len(attempts),
	}
	if best != nil {
		result.FinalImageBase64 = best.ImageBase64
		result.FinalCritique = best.Critique
	}
	return result
}

// ===== Critique =====

const critiquePrompt = `You are a professional art critic evaluating a generated room image. The image was generated to represent a specific person's ideal room.

**Persona**: %s
**Target atmosphere**: mood=%s, lighting=%s, style=%s
**Key objects that should be present in this view**: %s

Score the image on these 4 dimensions (1-4 scale, where 4 is excellent):

1. object_presence: Are the key personal objects visible and recognizable?
2. atmosphere_match: Does the mood, lighting, and color palette match the target?
3. spatial_coherence: Is the room layout realistic and well-composed?
4. overall_quality: Overall visual quality and appeal of the image

For each dimension, provide a score (1-4) and brief feedback explaining why.`

// critiqueImage scores one generated image against this viewpoint's own
// object list, never the full profile's. Returns nil when the critique call
// itself fails.
func (p *Pipeline) critiqueImage(ctx context.Context, imageData []byte, prompt ImageGenPrompt, profile AggregatedProfile) *CritiqueScores {
	names := make([]string, len(prompt.ObjectDetails))
	for i, od := range prompt.ObjectDetails {
		names[i] = od.Name
	}

	text := fmt.Sprintf(critiquePrompt,
		profile.PersonaSummary,
		profile.Atmosphere.DominantMood,
		profile.Atmosphere.DominantLighting,
		profile.Atmosphere.Style,
		orDefault(strings.Join(names, ", "), "(none specified)"),
	)

	var scores CritiqueScores
	err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts: []gemini.Part{
			gemini.ImagePart(imageData, "image/png"),
			gemini.TextPart(text),
		},
		Schema:      critiqueSchema(),
		Temperature: 0.2,
		Out:         &scores,
	})
	if err != nil {
		p.log.Error("critique call failed", zap.Error(err))
		return nil
	}
	return &scores
}

// ===== Refinement =====

// refinementMessage turns critique feedback into the next chat turn. With no
// critique to react to, a generic improvement instruction is used.
func refinementMessage(critique *CritiqueScores) string {
	if critique == nil {
		return "The previous image needs improvement. Please regenerate with " +
			"better overall quality, sharper objects, and more natural lighting."
	}

	var issues []string
	if critique.ObjectPresence < 3 {
		issues = append(issues, "Objects are not visible enough: "+critique.ObjectPresenceFeedback)
	}
	if critique.AtmosphereMatch < 3 {
		issues = append(issues, "Atmosphere doesn't match: "+critique.AtmosphereMatchFeedback)
	}
	if critique.SpatialCoherence < 3 {
		issues = append(issues, "Spatial layout issues: "+critique.SpatialCoherenceFeedback)
	}
	if critique.OverallQuality < 3 {
		issues = append(issues, "Quality issues: "+critique.OverallQualityFeedback)
	}
	if len(issues) == 0 {
		issues = append(issues, "Overall quality could be better — make objects sharper, "+
			"lighting more natural, and composition more compelling.")
	}

	var b strings.Builder
	b.WriteString("Please refine the previous image. Keep what works well but fix these issues:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	b.WriteString("\nDo not change the overall room layout or style — only improve the weak areas.")
	return b.String()
}
