package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
)

const objectDetailPrompt = `You are describing objects in a room for an image generation prompt. The room is viewed from a specific camera angle.

**Camera position**: %s
**Camera direction**: %s
**Room style**: %s

**Objects and their placements**:
%s

For each object, describe how it appears FROM THE CAMERA'S PERSPECTIVE. Include:
- name: the object name
- placement: where it sits in the frame (left, right, center, foreground, background)
- detailed_description: vivid, specific visual description as seen from the camera angle. Include material, color, texture, size relative to the scene, and any distinctive features that make it personal rather than generic.

Remember: animals, landscapes and vehicles appear as framed wall art, and no human figures appear anywhere — only traces of their presence.`

type objectDetailsResponse struct {
	ObjectDetails []ObjectDetail `json:"object_details"`
}

// describeObjects makes one detail call for a viewpoint, constrained to that
// viewpoint's objects. When the filtered placement list is empty it falls
// back to each object's own short description.
func (p *Pipeline) describeObjects(ctx context.Context, profile AggregatedProfile, layout LayoutPlan, view ViewpointPlan) []ObjectDetail {
	placements := strings.Join(view.Placements, "\n")
	if placements == "" {
		var b strings.Builder
		for _, o := range profile.KeyObjects {
			if containsName(view.Objects, o.Name) {
				fmt.Fprintf(&b, "  - %s: %s\n", o.Name, o.Description)
			}
		}
		placements = b.String()
	}

	prompt := fmt.Sprintf(objectDetailPrompt,
		orDefault(layout.CameraPosition, "doorway"),
		orDefault(view.CameraDirection, "looking into the room"),
		profile.Atmosphere.Style,
		placements,
	)

	var resp objectDetailsResponse
	err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts:       []gemini.Part{gemini.TextPart(prompt)},
		Schema:      objectDetailsSchema(),
		Temperature: 0.5,
		Out:         &resp,
	})
	if err != nil {
		p.log.Warn("object detailing unavailable",
			zap.String("view", string(view.Direction)), zap.Error(err))
		return nil
	}
	return resp.ObjectDetails
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
