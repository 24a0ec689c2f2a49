package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"instaroom/internal/gemini"
	"instaroom/internal/scrape"
	"instaroom/internal/worldlabs"
)

// scriptedModel answers every structured call by output type, so one mock
// serves the whole pipeline.
func scriptedModel() *mockModel {
	return &mockModel{
		generateJSON: func(call gemini.StructuredCall) error {
			switch out := call.Out.(type) {
			case *PostAnalysis:
				*out = PostAnalysis{
					Objects: []DetectedObject{
						{Name: "guitar", Prominence: ProminenceCenter, Description: "worn acoustic"},
						{Name: "plant", Prominence: ProminenceBackground},
					},
					Scene: SceneInfo{
						Mood:         []string{"cozy"},
						Lighting:     "golden_hour",
						ColorPalette: []string{"#aa5500"},
					},
					EmotionalWeight: 4,
				}
			case *dedupResponse:
				*out = dedupResponse{Groups: []dedupGroup{
					{Canonical: "guitar", Variants: []string{"guitar"}},
					{Canonical: "plant", Variants: []string{"plant"}},
				}}
			case *personaResponse:
				*out = personaResponse{
					PersonaSummary: "a cozy musician",
					Style:          "cozy_vintage",
					WindowView:     "garden",
					TimeOfDay:      "golden_hour",
				}
			case *LayoutPlan:
				*out = LayoutPlan{
					RoomShape:        "rectangular",
					CameraPosition:   "doorway",
					CameraDirection:  "toward the window",
					ObjectPlacements: []string{"guitar: by the wall", "plant: on the sill"},
				}
			case *objectDetailsResponse:
				*out = objectDetailsResponse{ObjectDetails: []ObjectDetail{
					{Name: "guitar", Placement: "right", DetailedDescription: "a worn acoustic guitar"},
				}}
			case *CritiqueScores:
				*out = uniformCritique(4)
			default:
				return errors.New("unexpected structured call")
			}
			return nil
		},
		generateText: func(gemini.TextCall) (string, error) {
			return "A cozy vintage room with a guitar by the wall.", nil
		},
	}
}

func scrapedFixture() scrape.Result {
	return scrape.Result{
		Profile: scrape.Profile{Username: "sam", Biography: "music + plants"},
		Posts: []scrape.Post{
			{ImageURLs: []string{"https://img/1.jpg"}, Likes: 12, Caption: "new strings"},
			{ImageURLs: []string{"https://img/2.jpg"}, Likes: 7},
		},
	}
}

func fixtureFetcher() *mockFetcher {
	return &mockFetcher{byURL: map[string][]byte{
		"https://img/1.jpg": []byte("post-1"),
		"https://img/2.jpg": []byte("post-2"),
	}}
}

func TestRunSingleView(t *testing.T) {
	session := &mockSession{replies: []sessionReply{{image: []byte("room")}}}
	p := testPipeline(t, scriptedModel(), &mockOpener{session: session}, fixtureFetcher(), nil)

	result, err := p.Run(t.Context(), scrapedFixture(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if result.RunID == "" {
		t.Error("missing run id")
	}
	if result.Images.Forward.FinalImageBase64 == "" {
		t.Error("no forward image")
	}
	if result.Images.Backward.TotalAttempts != 0 {
		t.Errorf("backward attempted in single-view mode: %+v", result.Images.Backward)
	}
	if result.Profile.Atmosphere.Style != "cozy_vintage" {
		t.Errorf("style = %q", result.Profile.Atmosphere.Style)
	}
	if result.Scene != nil {
		t.Error("scene present without ConvertTo3D")
	}
}

func TestRunDualView(t *testing.T) {
	session := &mockSession{replies: []sessionReply{
		{image: []byte("fwd")},
		{image: []byte("bwd")},
	}}
	p := testPipeline(t, scriptedModel(), &mockOpener{session: session}, fixtureFetcher(), nil)

	result, err := p.Run(t.Context(), scrapedFixture(), Options{DualView: true})
	if err != nil {
		t.Fatal(err)
	}

	if result.Images.Forward.FinalImageBase64 == "" || result.Images.Backward.FinalImageBase64 == "" {
		t.Fatal("missing a view image")
	}
	if len(session.calls) != 2 {
		t.Errorf("session turns = %d, want both views in one session", len(session.calls))
	}
}

func TestRunNoAnalyzablePosts(t *testing.T) {
	p := testPipeline(t, scriptedModel(), nil, &mockFetcher{}, nil)

	scraped := scrapedFixture()
	for i := range scraped.Posts {
		scraped.Posts[i].ImageURLs = nil
	}
	_, err := p.Run(t.Context(), scraped, Options{})
	if !errors.Is(err, ErrNoAnalyzablePosts) {
		t.Fatalf("err = %v, want ErrNoAnalyzablePosts", err)
	}
}

// failingConverter reports a service error, as when polling completes with an
// error payload.
type failingConverter struct {
	called bool
}

func (c *failingConverter) Convert(context.Context, worldlabs.ConvertRequest) (*worldlabs.SceneResult, error) {
	c.called = true
	return nil, &worldlabs.Error{Kind: worldlabs.KindService, Code: "GENERATION_FAILED", Message: "unsupported content"}
}

func TestRunConversionFailureKeeps2DResult(t *testing.T) {
	session := &mockSession{replies: []sessionReply{{image: []byte("room")}}}
	converter := &failingConverter{}
	p := testPipeline(t, scriptedModel(), &mockOpener{session: session}, fixtureFetcher(), converter)

	result, err := p.Run(t.Context(), scrapedFixture(), Options{ConvertTo3D: true})
	if err != nil {
		t.Fatal(err)
	}

	if !converter.called {
		t.Fatal("converter never invoked")
	}
	if result.Scene != nil {
		t.Error("scene should be nil after conversion failure")
	}
	if result.Images.Forward.FinalImageBase64 == "" {
		t.Error("2D result lost on conversion failure")
	}
}

type capturingConverter struct {
	req   worldlabs.ConvertRequest
	scene *worldlabs.SceneResult
}

func (c *capturingConverter) Convert(_ context.Context, req worldlabs.ConvertRequest) (*worldlabs.SceneResult, error) {
	c.req = req
	return c.scene, nil
}

func TestRunConversionSuccess(t *testing.T) {
	session := &mockSession{replies: []sessionReply{
		{image: []byte("fwd")},
		{image: []byte("bwd")},
	}}
	converter := &capturingConverter{scene: &worldlabs.SceneResult{WorldID: "w-1"}}
	p := testPipeline(t, scriptedModel(), &mockOpener{session: session}, fixtureFetcher(), converter)

	result, err := p.Run(t.Context(), scrapedFixture(), Options{DualView: true, ConvertTo3D: true})
	if err != nil {
		t.Fatal(err)
	}

	if result.Scene == nil || result.Scene.WorldID != "w-1" {
		t.Fatalf("scene = %+v", result.Scene)
	}
	if len(converter.req.Images) != 2 {
		t.Errorf("converter got %d images, want both views", len(converter.req.Images))
	}
	if string(converter.req.Images[0]) != "fwd" {
		t.Error("forward image not first")
	}
	if converter.req.TextPrompt == "" {
		t.Error("no spatial prompt passed to converter")
	}
}

func TestRunSpatialPromptFallback(t *testing.T) {
	model := scriptedModel()
	model.generateText = func(call gemini.TextCall) (string, error) {
		text := ""
		if len(call.Parts) > 0 {
			text = call.Parts[0].Text
		}
		if strings.Contains(text, "3D scene generator") {
			return "", errors.New("model down")
		}
		return "A cozy vintage room.", nil
	}
	session := &mockSession{replies: []sessionReply{{image: []byte("room")}}}
	converter := &capturingConverter{scene: &worldlabs.SceneResult{WorldID: "w-2"}}
	p := testPipeline(t, model, &mockOpener{session: session}, fixtureFetcher(), converter)

	if _, err := p.Run(t.Context(), scrapedFixture(), Options{ConvertTo3D: true}); err != nil {
		t.Fatal(err)
	}
	if converter.req.TextPrompt != worldlabs.DefaultScenePrompt {
		t.Errorf("text prompt = %q, want fixed default", converter.req.TextPrompt)
	}
}

func TestRunWritesDebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	session := &mockSession{replies: []sessionReply{{image: []byte("room")}}}
	p := testPipeline(t, scriptedModel(), &mockOpener{session: session}, fixtureFetcher(), nil)

	if _, err := p.Run(t.Context(), scrapedFixture(), Options{OutputDir: dir}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var haveJSON, havePNG bool
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".json":
			haveJSON = true
		case ".png":
			havePNG = true
		}
		if !strings.HasPrefix(e.Name(), "sam_") {
			t.Errorf("artifact %q not keyed by username", e.Name())
		}
	}
	if !haveJSON || !havePNG {
		t.Errorf("artifacts json=%v png=%v, want both", haveJSON, havePNG)
	}
}
