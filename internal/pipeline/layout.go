package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
)

// ===== Layout planning =====

const layoutRules = `Design a room layout with these constraints:
1. The room should feel personal and lived-in, not like a showroom
2. Non-physical subjects (animals, landscapes, vehicles) must be represented as framed wall art, not as literal objects in the room
3. NO human figures anywhere — convey the person's presence through traces of occupancy (a worn jacket on a chair, an open notebook, a half-finished drink)
4. Walls and floor must have a specific material and color drawn from the palette — never plain white`

const singleViewLayoutPrompt = `You are an expert interior designer planning a room layout for image generation.

**Persona**: %s
**Style**: %s
**Atmosphere**: mood=%s, lighting=%s, time_of_day=%s
**Window view**: %s
**Room size**: %s

**Key objects that MUST be in the room** (ranked by importance):
%s

` + layoutRules + `
5. ALL key objects must be visible from a SINGLE camera viewpoint — this is a hard constraint
6. Choose a camera position and direction that captures the most compelling composition

Return:
- room_shape: The shape of the room (e.g., "rectangular", "L-shaped", "open plan")
- window_placement: Where the window is relative to the camera (e.g., "left wall", "far wall", "behind camera")
- furniture: List of major furniture pieces and their positions
- object_placements: Where each key object is placed (e.g., "acoustic_guitar: leaning against the wall to the right")
- visual_flow: How the eye moves through the scene
- camera_position: Where the camera is (e.g., "standing at the doorway", "corner of the room")
- camera_direction: What direction the camera faces (e.g., "looking toward the far wall with window")`

const dualViewLayoutPrompt = `You are an expert interior designer planning a room layout for image generation. The room will be captured as TWO opposing views from one camera position: a forward view and a backward view (camera turned 180°).

**Persona**: %s
**Style**: %s
**Atmosphere**: mood=%s, lighting=%s, time_of_day=%s
**Window view**: %s
**Room size**: %s

**Key objects that MUST be in the room** (ranked by importance):
%s

` + layoutRules + `
5. Assign EVERY key object to exactly one of the two views — no object may appear in both, and none may be left out
6. Balance the views so neither feels empty

Return:
- room_shape: The shape of the room (e.g., "rectangular", "L-shaped", "open plan")
- window_placement: Where the window is relative to the forward camera direction
- furniture: List of major furniture pieces and their positions
- object_placements: Where each key object is placed (e.g., "acoustic_guitar: leaning against the wall to the right")
- visual_flow: How the eye moves through the scene
- camera_position: Where the camera stands (shared by both views)
- camera_direction: What the forward view faces
- camera_direction_back: What the backward view faces (the opposite direction)
- forward_objects: Key object names visible in the forward view
- backward_objects: Key object names visible in the backward view`

// planLayout makes the layout call and, in dual-view mode, repairs the
// forward/backward assignment so it partitions the full key-object set.
func (p *Pipeline) planLayout(ctx context.Context, profile AggregatedProfile, dualView bool) LayoutPlan {
	var objectsText strings.Builder
	for i, o := range profile.KeyObjects {
		fmt.Fprintf(&objectsText, "  %d. %s — %s\n", i+1, o.Name, o.Description)
	}

	template := singleViewLayoutPrompt
	if dualView {
		template = dualViewLayoutPrompt
	}
	prompt := fmt.Sprintf(template,
		profile.PersonaSummary,
		profile.Atmosphere.Style,
		profile.Atmosphere.DominantMood,
		profile.Atmosphere.DominantLighting,
		profile.Atmosphere.TimeOfDay,
		profile.Atmosphere.WindowView,
		profile.Atmosphere.RoomSize,
		orDefault(objectsText.String(), "(no specific objects)"),
	)

	var layout LayoutPlan
	err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts:       []gemini.Part{gemini.TextPart(prompt)},
		Schema:      layoutSchema(dualView),
		Temperature: 0.6,
		Out:         &layout,
	})
	if err != nil {
		p.log.Warn("layout planning unavailable, using empty layout", zap.Error(err))
		layout = LayoutPlan{}
	}

	if dualView {
		names := make([]string, len(profile.KeyObjects))
		for i, o := range profile.KeyObjects {
			names[i] = o.Name
		}
		layout.ForwardObjects, layout.BackwardObjects = repairAssignments(
			names, layout.ForwardObjects, layout.BackwardObjects)
	}
	return layout
}

// repairAssignments makes the view assignment a partition of the ranked
// object list. The model is not trusted to satisfy disjointness:
//   - both lists empty: alternate by rank (even forward, odd backward)
//   - one list empty: move the first half (rounded up, minimum 1) of the
//     other list to it
//   - otherwise: drop unknown names, assign missing names to the smaller
//     side, and resolve duplicates in favor of the forward view
func repairAssignments(all, forward, backward []string) (fwd, bwd []string) {
	if len(all) == 0 {
		return nil, nil
	}

	known := make(map[string]struct{}, len(all))
	for _, n := range all {
		known[n] = struct{}{}
	}
	forward = keepKnown(forward, known)
	backward = keepKnown(backward, known)

	switch {
	case len(forward) == 0 && len(backward) == 0:
		for i, n := range all {
			if i%2 == 0 {
				fwd = append(fwd, n)
			} else {
				bwd = append(bwd, n)
			}
		}
		return fwd, bwd
	case len(forward) == 0:
		half := (len(backward) + 1) / 2
		return backward[:half], backward[half:]
	case len(backward) == 0:
		half := (len(forward) + 1) / 2
		return forward[:half], forward[half:]
	}

	assigned := make(map[string]Viewpoint, len(all))
	for _, n := range forward {
		assigned[n] = ViewForward
	}
	for _, n := range backward {
		// Duplicates stay forward.
		if _, ok := assigned[n]; !ok {
			assigned[n] = ViewBackward
		}
	}
	for _, n := range all {
		if _, ok := assigned[n]; ok {
			continue
		}
		if countView(assigned, ViewForward) <= countView(assigned, ViewBackward) {
			assigned[n] = ViewForward
		} else {
			assigned[n] = ViewBackward
		}
	}

	// Rebuild in rank order so output is deterministic.
	for _, n := range all {
		if assigned[n] == ViewForward {
			fwd = append(fwd, n)
		} else {
			bwd = append(bwd, n)
		}
	}
	return fwd, bwd
}

func keepKnown(names []string, known map[string]struct{}) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, n := range names {
		if _, ok := known[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func countView(assigned map[string]Viewpoint, v Viewpoint) int {
	n := 0
	for _, got := range assigned {
		if got == v {
			n++
		}
	}
	return n
}

// ===== Viewpoint plans =====

// viewpointPlans slices the layout into one plan per camera direction.
func viewpointPlans(layout LayoutPlan, profile AggregatedProfile, dualView bool) []ViewpointPlan {
	if !dualView {
		names := make([]string, len(profile.KeyObjects))
		for i, o := range profile.KeyObjects {
			names[i] = o.Name
		}
		return []ViewpointPlan{{
			Direction:       ViewForward,
			Objects:         names,
			CameraDirection: layout.CameraDirection,
			Placements:      filterPlacements(layout.ObjectPlacements, names),
		}}
	}
	return []ViewpointPlan{
		{
			Direction:       ViewForward,
			Objects:         layout.ForwardObjects,
			CameraDirection: layout.CameraDirection,
			Placements:      filterPlacements(layout.ObjectPlacements, layout.ForwardObjects),
		},
		{
			Direction:       ViewBackward,
			Objects:         layout.BackwardObjects,
			CameraDirection: layout.CameraDirectionBack,
			Placements:      filterPlacements(layout.ObjectPlacements, layout.BackwardObjects),
		},
	}
}

// filterPlacements keeps the placement entries whose leading name matches one
// of the viewpoint's assigned objects. Entries are formatted
// "object-name: description".
func filterPlacements(placements, objects []string) []string {
	var out []string
	for _, placement := range placements {
		lead, _, _ := strings.Cut(placement, ":")
		for _, obj := range objects {
			if namesMatch(lead, obj) {
				out = append(out, placement)
				break
			}
		}
	}
	return out
}

// namesMatch compares two object names by token overlap. Both names are
// tokenized on whitespace, underscores and hyphens; a match is an exact
// case-insensitive equality, or more than half of the shorter token set
// appearing in both. Substring matches alone do not count, so "cat" never
// matches "catalog".
func namesMatch(a, b string) bool {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	if strings.EqualFold(strings.Join(ta, " "), strings.Join(tb, " ")) {
		return true
	}

	short, long := ta, tb
	if len(tb) < len(ta) {
		short, long = tb, ta
	}
	longSet := make(map[string]struct{}, len(long))
	for _, t := range long {
		longSet[t] = struct{}{}
	}
	shared := 0
	for _, t := range short {
		if _, ok := longSet[t]; ok {
			shared++
		}
	}
	return shared*2 > len(short)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '_' || r == '-'
	})
}
