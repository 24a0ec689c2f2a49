package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"instaroom/internal/gemini"
	"instaroom/internal/scrape"
)

const topObjects = 8

// prominenceScore maps a prominence label to its weight. Unknown labels get
// the minor weight.
func prominenceScore(p Prominence) float64 {
	switch p {
	case ProminenceCenter:
		return 1.0
	case ProminenceBackground:
		return 0.5
	default:
		return 0.2
	}
}

// aggregateAnalyses merges per-post observations into a single persona
// profile. Two model calls are made (dedup, persona synthesis); a failure in
// either is replaced by documented defaults, never surfaced.
func (p *Pipeline) aggregateAnalyses(ctx context.Context, observations []PostObservation, profile scrape.Profile) AggregatedProfile {
	names := collectObjectNames(observations)
	dedup := p.deduplicateObjects(ctx, names)

	objects := scoreObjects(observations, dedup)
	atmosphere := deriveAtmosphere(observations)

	persona := p.synthesizePersona(ctx, objects, atmosphere, profile, observations)
	if persona.Style != "" {
		atmosphere.Style = persona.Style
	}
	atmosphere.WindowView = persona.WindowView
	if persona.TimeOfDay != "" {
		atmosphere.TimeOfDay = persona.TimeOfDay
	}

	return AggregatedProfile{
		PersonaSummary: persona.PersonaSummary,
		KeyObjects:     objects,
		Atmosphere:     atmosphere,
		HashtagThemes:  persona.HashtagThemes,
	}
}

// ===== Object deduplication =====

const dedupPrompt = `You are a semantic deduplication expert. Given this list of object names extracted from Instagram posts, group together names that refer to the same real-world object type. For example, "acoustic_guitar", "guitar", "electric_guitar" should all map to "guitar". "orange_cat", "tabby_cat", "cat" should map to "cat".

Object names:
%s

Return groups where each group has a canonical name and its variants. Only group names that are genuinely the same type of object. If an object has no duplicates, still include it as a group of one.`

type dedupGroup struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

type dedupResponse struct {
	Groups []dedupGroup `json:"groups"`
}

// collectObjectNames returns the sorted set of distinct raw object names.
func collectObjectNames(observations []PostObservation) []string {
	seen := make(map[string]struct{})
	for _, obs := range observations {
		for _, obj := range obs.Analysis.Objects {
			seen[obj.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// deduplicateObjects asks the model to cluster semantically equivalent names.
// The returned mapping is total over the input; on any failure it degrades to
// the identity mapping.
func (p *Pipeline) deduplicateObjects(ctx context.Context, names []string) map[string]string {
	mapping := make(map[string]string, len(names))
	for _, n := range names {
		mapping[n] = n
	}
	if len(names) <= 1 {
		return mapping
	}

	var listing strings.Builder
	for _, n := range names {
		fmt.Fprintf(&listing, "- %s\n", n)
	}

	var resp dedupResponse
	err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts:       []gemini.Part{gemini.TextPart(fmt.Sprintf(dedupPrompt, listing.String()))},
		Schema:      dedupSchema(),
		Temperature: 0.1,
		Out:         &resp,
	})
	if err != nil || len(resp.Groups) == 0 {
		p.log.Warn("object dedup unavailable, using identity mapping", zap.Error(err))
		return mapping
	}

	for _, group := range resp.Groups {
		for _, variant := range group.Variants {
			mapping[variant] = group.Canonical
		}
		mapping[group.Canonical] = group.Canonical
	}
	// Names the model dropped still map to themselves.
	for _, n := range names {
		if _, ok := mapping[n]; !ok {
			mapping[n] = n
		}
	}
	return mapping
}

// ===== Importance scoring =====

type objectStats struct {
	count          int
	prominenceSum  float64
	emotionalSum   int
	likesSum       int
	samples        int
	descriptions   []string
	bestProminence float64
	bestImageURL   string
}

// scoreObjects accumulates per-canonical-name stats and ranks the result.
//
// importance = 0.3·frequency + 0.25·mean prominence + 0.25·mean emotional
// weight (of 5) + 0.2·mean likes (normalized against the busiest post).
func scoreObjects(observations []PostObservation, dedup map[string]string) []KeyObject {
	stats := make(map[string]*objectStats)
	var order []string

	maxLikes := 1
	for _, obs := range observations {
		if obs.Likes > maxLikes {
			maxLikes = obs.Likes
		}
	}

	for _, obs := range observations {
		for _, obj := range obs.Analysis.Objects {
			canonical, ok := dedup[obj.Name]
			if !ok {
				canonical = obj.Name
			}
			s, ok := stats[canonical]
			if !ok {
				s = &objectStats{}
				stats[canonical] = s
				order = append(order, canonical)
			}
			prom := prominenceScore(obj.Prominence)
			s.count++
			s.prominenceSum += prom
			s.emotionalSum += obs.Analysis.EmotionalWeight
			s.likesSum += obs.Likes
			s.samples++
			if obj.Description != "" {
				s.descriptions = append(s.descriptions, obj.Description)
			}
			// Remember the image where this object was most prominent;
			// ties keep the first seen.
			if prom > s.bestProminence && len(obs.ImageURLs) > 0 {
				s.bestProminence = prom
				s.bestImageURL = obs.ImageURLs[0]
			}
		}
	}
	if len(stats) == 0 {
		return nil
	}

	maxCount := 1
	for _, s := range stats {
		if s.count > maxCount {
			maxCount = s.count
		}
	}

	scored := make([]KeyObject, 0, len(stats))
	for _, name := range order {
		s := stats[name]
		freq := float64(s.count) / float64(maxCount)
		avgProm := s.prominenceSum / float64(s.samples)
		avgEmo := float64(s.emotionalSum) / float64(s.samples) / 5.0
		avgLikes := float64(s.likesSum) / float64(s.samples) / float64(maxLikes)

		importance := freq*0.3 + avgProm*0.25 + avgEmo*0.25 + avgLikes*0.2

		description := ""
		if len(s.descriptions) > 0 {
			description = s.descriptions[0]
		}
		scored = append(scored, KeyObject{
			Name:           name,
			Importance:     math.Round(importance*10000) / 10000,
			Description:    description,
			SourceImageURL: s.bestImageURL,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Importance > scored[j].Importance
	})
	if len(scored) > topObjects {
		scored = scored[:topObjects]
	}
	return scored
}

// ===== Deterministic atmosphere =====

// deriveAtmosphere counts mood, lighting and palette values across all
// observations. Fields with no contributions fall back to fixed defaults.
func deriveAtmosphere(observations []PostObservation) RoomAtmosphere {
	moods := newCounter()
	lightings := newCounter()
	colors := newCounter()

	for _, obs := range observations {
		scene := obs.Analysis.Scene
		for _, m := range scene.Mood {
			moods.add(m)
		}
		if scene.Lighting != "" {
			lightings.add(scene.Lighting)
		}
		for _, c := range scene.ColorPalette {
			colors.add(c)
		}
	}

	mood := moods.mostCommon()
	if mood == "" {
		mood = "warm"
	}
	lighting := lightings.mostCommon()
	if lighting == "" {
		lighting = "natural"
	}

	return RoomAtmosphere{
		DominantMood:     mood,
		DominantLighting: lighting,
		ColorPalette:     colors.topN(5),
		RoomSize:         "medium",
		TimeOfDay:        "afternoon",
	}
}

// counter tallies string frequencies with first-seen tie-breaking.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) mostCommon() string {
	top := c.topN(1)
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

func (c *counter) topN(n int) []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// ===== Persona synthesis =====

const synthesisPrompt = `You are a creative interior designer and persona analyst. Based on the following data about an Instagram user, synthesize a cohesive persona profile for designing their ideal room.

**User bio**: %s
**Username**: %s
**Follower count**: %d

**Top objects found across their posts** (ranked by importance):
%s

**Dominant atmosphere from their posts**:
- Mood: %s
- Lighting: %s
- Top location types: %s
- Color palette: %s

**Most common hashtag themes**: %s

Return:
- persona_summary: A 2-3 sentence summary of who this person is and what their ideal room would feel like. Be specific and vivid.
- style: An interior design style label (e.g., "scandinavian_minimal", "bohemian_eclectic", "industrial_modern", "cozy_vintage")
- window_view: What should be visible through the room's window (e.g., "city_skyline", "ocean", "forest", "garden", "mountains", "urban_street")
- time_of_day: When this room feels most alive (e.g., "morning", "afternoon", "golden_hour", "evening", "night")
- hashtag_themes: Top 5 thematic keywords summarizing this person's interests`

type personaResponse struct {
	PersonaSummary string   `json:"persona_summary"`
	Style          string   `json:"style"`
	WindowView     string   `json:"window_view"`
	TimeOfDay      string   `json:"time_of_day"`
	HashtagThemes  []string `json:"hashtag_themes"`
}

// synthesizePersona makes the single persona-refinement call. On failure the
// zero value is returned and the deterministic atmosphere stands.
func (p *Pipeline) synthesizePersona(ctx context.Context, objects []KeyObject, atmosphere RoomAtmosphere, profile scrape.Profile, observations []PostObservation) personaResponse {
	hashtags := newCounter()
	locations := newCounter()
	for _, obs := range observations {
		for _, h := range obs.Hashtags {
			hashtags.add(h)
		}
		if lt := obs.Analysis.Scene.LocationType; lt != "" {
			locations.add(lt)
		}
	}

	var objectsText strings.Builder
	for i, o := range objects {
		fmt.Fprintf(&objectsText, "  %d. %s (importance: %.2f) — %s\n", i+1, o.Name, o.Importance, o.Description)
	}

	bio := profile.Biography
	if bio == "" {
		bio = "(no bio)"
	}

	prompt := fmt.Sprintf(synthesisPrompt,
		bio,
		profile.Username,
		profile.FollowerCount,
		orDefault(objectsText.String(), "(none detected)"),
		atmosphere.DominantMood,
		atmosphere.DominantLighting,
		orDefault(strings.Join(locations.topN(5), ", "), "(varied)"),
		orDefault(strings.Join(atmosphere.ColorPalette, ", "), "(varied)"),
		orDefault(strings.Join(hashtags.topN(10), ", "), "(none)"),
	)

	var resp personaResponse
	err := p.model.GenerateJSON(ctx, gemini.StructuredCall{
		Parts:       []gemini.Part{gemini.TextPart(prompt)},
		Schema:      personaSchema(),
		Temperature: 0.5,
		Out:         &resp,
	})
	if err != nil {
		p.log.Warn("persona synthesis unavailable, using defaults", zap.Error(err))
		return personaResponse{}
	}
	return resp
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
