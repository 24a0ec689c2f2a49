package pipeline

import "google.golang.org/genai"

// ===== Structured-output schemas =====
//
// Every model call that must return machine-readable data declares one of
// these schemas so the response is constrained JSON rather than prose.

func stringSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeString}
}

func stringListSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: stringSchema()}
}

func postAnalysisSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"objects": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": stringSchema(),
						"prominence": {
							Type: genai.TypeString,
							Enum: []string{"center", "background", "minor"},
						},
						"description": stringSchema(),
					},
					Required: []string{"name", "prominence"},
				},
			},
			"scene": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"location_type": stringSchema(),
					"mood":          stringListSchema(),
					"lighting":      stringSchema(),
					"color_palette": stringListSchema(),
				},
			},
			"people": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"count":     {Type: genai.TypeInteger},
					"is_selfie": {Type: genai.TypeBoolean},
					"activity":  stringSchema(),
				},
			},
			"emotional_weight": {Type: genai.TypeInteger},
			"frame_worthy":     {Type: genai.TypeBoolean},
			"frame_reason":     stringSchema(),
		},
		Required: []string{"objects", "scene", "people", "emotional_weight"},
	}
}

func dedupSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"groups": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"canonical": stringSchema(),
						"variants":  stringListSchema(),
					},
					Required: []string{"canonical", "variants"},
				},
			},
		},
		Required: []string{"groups"},
	}
}

func personaSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"persona_summary": stringSchema(),
			"style":           stringSchema(),
			"window_view":     stringSchema(),
			"time_of_day":     stringSchema(),
			"hashtag_themes":  stringListSchema(),
		},
	}
}

func layoutSchema(dualView bool) *genai.Schema {
	props := map[string]*genai.Schema{
		"room_shape":        stringSchema(),
		"window_placement":  stringSchema(),
		"furniture":         stringListSchema(),
		"object_placements": stringListSchema(),
		"visual_flow":       stringSchema(),
		"camera_position":   stringSchema(),
		"camera_direction":  stringSchema(),
	}
	if dualView {
		props["camera_direction_back"] = stringSchema()
		props["forward_objects"] = stringListSchema()
		props["backward_objects"] = stringListSchema()
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props}
}

func objectDetailsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"object_details": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":                 stringSchema(),
						"placement":            stringSchema(),
						"detailed_description": stringSchema(),
					},
					Required: []string{"name", "detailed_description"},
				},
			},
		},
		Required: []string{"object_details"},
	}
}

func critiqueSchema() *genai.Schema {
	score := func() *genai.Schema {
		return &genai.Schema{Type: genai.TypeInteger}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"object_presence":            score(),
			"object_presence_feedback":   stringSchema(),
			"atmosphere_match":           score(),
			"atmosphere_match_feedback":  stringSchema(),
			"spatial_coherence":          score(),
			"spatial_coherence_feedback": stringSchema(),
			"overall_quality":            score(),
			"overall_quality_feedback":   stringSchema(),
		},
		Required: []string{
			"object_presence", "atmosphere_match",
			"spatial_coherence", "overall_quality",
		},
	}
}
