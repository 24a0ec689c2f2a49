package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
	"instaroom/internal/worldlabs"
)

const spatialPrompt = `You are writing a short spatial description of a room for a 3D scene generator.
The 3D engine already has the image — it needs help understanding the GEOMETRY and DEPTH, not the aesthetics.

**Room shape**: %s
**Room size**: %s
**Camera position**: %s
**Camera direction**: %s
**Window placement**: %s
**Window view**: %s
**Time of day**: %s

**Object placements in the room**:
%s

**Visual flow**: %s

Instructions:
- Write a single paragraph (~120 words) describing the room's 3D spatial layout
- Focus on: room dimensions, wall/floor/ceiling relationships, furniture positions relative to walls and each other, depth layering (foreground to background), and camera viewpoint
- DO NOT describe colors, mood, aesthetics, lighting quality, or artistic style — those are already captured in the image
- DO NOT name any object already visible in the image as something new to add — describe only what the camera cannot see (wall materials beyond frame, what lies behind and beside the shot, what is visible through the window, ambient space)
- Use spatial language: "near the left wall", "receding toward the far corner", "in the foreground at knee height"
- Mention the window as a depth anchor (where it sits in the room geometry)
- Keep it factual and geometric

Return ONLY the spatial paragraph, nothing else.`

// spatialScenePrompt writes the text prompt for the 3D conversion. It never
// fails the run: any error degrades to the fixed default prompt.
func (p *Pipeline) spatialScenePrompt(ctx context.Context, profile AggregatedProfile, layout LayoutPlan) string {
	placements := "  (no specific placements)"
	if len(layout.ObjectPlacements) > 0 {
		var b strings.Builder
		for _, pl := range layout.ObjectPlacements {
			fmt.Fprintf(&b, "  - %s\n", pl)
		}
		placements = strings.TrimRight(b.String(), "\n")
	}

	prompt := fmt.Sprintf(spatialPrompt,
		orDefault(layout.RoomShape, "rectangular"),
		orDefault(profile.Atmosphere.RoomSize, "medium"),
		orDefault(layout.CameraPosition, "doorway"),
		orDefault(layout.CameraDirection, "looking into the room"),
		orDefault(layout.WindowPlacement, "far wall"),
		orDefault(profile.Atmosphere.WindowView, "exterior"),
		orDefault(profile.Atmosphere.TimeOfDay, "afternoon"),
		placements,
		orDefault(layout.VisualFlow, "natural left-to-right"),
	)

	text, err := p.model.GenerateText(ctx, gemini.TextCall{
		Parts:       []gemini.Part{gemini.TextPart(prompt)},
		Temperature: 0.4,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		p.log.Warn("spatial prompt generation failed, using default", zap.Error(err))
		return worldlabs.DefaultScenePrompt
	}
	return strings.TrimSpace(text)
}
