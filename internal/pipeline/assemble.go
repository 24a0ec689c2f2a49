package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
)

// maxReferenceImages is the image-generation service's reference slot limit.
const maxReferenceImages = 14

// buildReferenceImages selects reference images for one viewpoint. Objects
// are visited in rank order; only those assigned to this viewpoint with a
// source image qualify. Objects sharing a source URL share one slot and have
// their names comma-joined. Indices are 1-based and contiguous.
func buildReferenceImages(profile AggregatedProfile, viewObjects []string) ([]string, map[int]string) {
	urls := make([]string, 0, maxReferenceImages)
	mapping := make(map[int]string)
	slotByURL := make(map[string]int)

	for _, obj := range profile.KeyObjects {
		if !containsName(viewObjects, obj.Name) || obj.SourceImageURL == "" {
			continue
		}
		if slot, ok := slotByURL[obj.SourceImageURL]; ok {
			mapping[slot] = mapping[slot] + ", " + obj.Name
			continue
		}
		if len(urls) >= maxReferenceImages {
			break
		}
		urls = append(urls, obj.SourceImageURL)
		slot := len(urls)
		slotByURL[obj.SourceImageURL] = slot
		mapping[slot] = obj.Name
	}
	return urls, mapping
}

const assemblyPrompt = `You are writing an image generation prompt for a room scene. Write a single, detailed, natural-language paragraph that describes the room from the camera's viewpoint.

**Persona**: %s
**Style**: %s
**Atmosphere**: mood=%s, lighting=%s, time_of_day=%s
**Window view**: %s
**Color palette**: %s

**Camera setup**:
- Position: %s
- Direction: %s

**Object details (as seen from camera)**:
%s

**Reference images are provided for these objects** (refer to them by number):
%s

Instructions:
- Write a vivid, photorealistic description of the room as seen from the camera angle
- Explicitly mention each key object with its visual details
- For objects that have reference images, say "the [object] from reference image [N]" so the image generator knows to match the reference
- Describe lighting, colors, mood, and atmosphere
- Include what's visible through the window
- Make it feel like a real, lived-in space — not a catalog
- Do NOT use bullet points or structured format — write flowing prose
- Keep it under 400 words

Return ONLY the prompt text, nothing else.`

// assemblePrompt composes the final generation prompt for one viewpoint.
func (p *Pipeline) assemblePrompt(ctx context.Context, profile AggregatedProfile, layout LayoutPlan, view ViewpointPlan, details []ObjectDetail, refMapping map[int]string) string {
	var detailsText strings.Builder
	for _, od := range details {
		fmt.Fprintf(&detailsText, "  - %s: %s (placed %s)\n", od.Name, od.DetailedDescription, od.Placement)
	}

	refText := "  (no reference images)"
	if len(refMapping) > 0 {
		slots := make([]int, 0, len(refMapping))
		for slot := range refMapping {
			slots = append(slots, slot)
		}
		sort.Ints(slots)
		var b strings.Builder
		for _, slot := range slots {
			fmt.Fprintf(&b, "  Reference image %d: %s\n", slot, refMapping[slot])
		}
		refText = strings.TrimRight(b.String(), "\n")
	}

	prompt := fmt.Sprintf(assemblyPrompt,
		profile.PersonaSummary,
		profile.Atmosphere.Style,
		profile.Atmosphere.DominantMood,
		profile.Atmosphere.DominantLighting,
		profile.Atmosphere.TimeOfDay,
		profile.Atmosphere.WindowView,
		orDefault(strings.Join(profile.Atmosphere.ColorPalette, ", "), "(varied)"),
		orDefault(layout.CameraPosition, "doorway"),
		orDefault(view.CameraDirection, "looking into the room"),
		orDefault(detailsText.String(), "(no specific objects)"),
		refText,
	)

	text, err := p.model.GenerateText(ctx, gemini.TextCall{
		Parts:       []gemini.Part{gemini.TextPart(prompt)},
		Temperature: 0.7,
	})
	if err != nil {
		p.log.Warn("prompt assembly unavailable",
			zap.String("view", string(view.Direction)), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

// designViewPrompt runs the per-viewpoint design steps (detailing, reference
// selection, assembly) and packages them for the generation stage.
func (p *Pipeline) designViewPrompt(ctx context.Context, profile AggregatedProfile, layout LayoutPlan, view ViewpointPlan) ImageGenPrompt {
	refURLs, refMapping := buildReferenceImages(profile, view.Objects)
	details := p.describeObjects(ctx, profile, layout, view)
	finalPrompt := p.assemblePrompt(ctx, profile, layout, view, details, refMapping)

	return ImageGenPrompt{
		Layout:                layout,
		View:                  view,
		ObjectDetails:         details,
		FinalPrompt:           finalPrompt,
		ReferenceImageURLs:    refURLs,
		ReferenceImageMapping: refMapping,
	}
}
