package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"instaroom/internal/scrape"
)

// debugAttempt mirrors GenerationAttempt with the image payload replaced by
// the file it was written to, keeping the JSON dump readable.
type debugAttempt struct {
	AttemptNumber int             `json:"attempt_number"`
	ImageFile     string          `json:"image_file"`
	Critique      *CritiqueScores `json:"critique"`
	PromptUsed    string          `json:"prompt_used"`
}

type debugViewResult struct {
	Attempts      []debugAttempt  `json:"attempts"`
	FinalCritique *CritiqueScores `json:"final_critique"`
	TotalAttempts int             `json:"total_attempts"`
}

type debugDump struct {
	Metadata struct {
		Username      string `json:"username"`
		RunID         string `json:"run_id"`
		Timestamp     string `json:"timestamp"`
		PostCount     int    `json:"post_count"`
		AnalyzedCount int    `json:"analyzed_count"`
	} `json:"metadata"`
	Analyses []PostObservation          `json:"stage_1_analyses"`
	Profile  AggregatedProfile          `json:"stage_2_profile"`
	Prompts  []ImageGenPrompt           `json:"stage_3_prompts"`
	Results  map[string]debugViewResult `json:"stage_4_results"`
}

// saveDebugArtifacts writes all intermediate results to a JSON file plus the
// attempt images as PNGs, keyed by username, timestamp and run ID. Purely
// diagnostic; never fails the run.
func (p *Pipeline) saveDebugArtifacts(
	outputDir, runID string,
	scraped scrape.Result,
	observations []PostObservation,
	profile AggregatedProfile,
	prompts []ImageGenPrompt,
	result DualImageGenResult,
) {
	if outputDir == "" {
		return
	}
	username := scraped.Profile.Username
	timestamp := time.Now().UTC().Format("20060102_150405")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		p.log.Error("debug output dir", zap.Error(err))
		return
	}

	var dump debugDump
	dump.Metadata.Username = username
	dump.Metadata.RunID = runID
	dump.Metadata.Timestamp = timestamp
	dump.Metadata.PostCount = len(scraped.Posts)
	dump.Metadata.AnalyzedCount = len(observations)
	dump.Analyses = observations
	dump.Profile = profile
	dump.Prompts = prompts
	dump.Results = map[string]debugViewResult{
		string(ViewForward):  p.dumpViewResult(outputDir, username, timestamp, ViewForward, result.Forward),
		string(ViewBackward): p.dumpViewResult(outputDir, username, timestamp, ViewBackward, result.Backward),
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		p.log.Error("encode debug dump", zap.Error(err))
		return
	}
	jsonPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.json", username, timestamp))
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		p.log.Error("write debug dump", zap.Error(err))
		return
	}
	p.log.Info("saved debug artifacts", zap.String("path", jsonPath))
}

// dumpViewResult writes a view's attempt images to disk and returns the
// JSON-friendly record pointing at them.
func (p *Pipeline) dumpViewResult(outputDir, username, timestamp string, view Viewpoint, result ImageGenResult) debugViewResult {
	out := debugViewResult{
		FinalCritique: result.FinalCritique,
		TotalAttempts: result.TotalAttempts,
	}
	for _, attempt := range result.Attempts {
		fileName := ""
		if attempt.ImageBase64 != "" {
			fileName = fmt.Sprintf("%s_%s_%s_attempt_%d.png", username, timestamp, view, attempt.AttemptNumber)
			imgBytes, err := base64.StdEncoding.DecodeString(attempt.ImageBase64)
			if err != nil {
				p.log.Error("decode attempt image", zap.Error(err))
				fileName = ""
			} else if err := os.WriteFile(filepath.Join(outputDir, fileName), imgBytes, 0o644); err != nil {
				p.log.Error("write attempt image", zap.Error(err))
				fileName = ""
			}
		}
		out.Attempts = append(out.Attempts, debugAttempt{
			AttemptNumber: attempt.AttemptNumber,
			ImageFile:     fileName,
			Critique:      attempt.Critique,
			PromptUsed:    attempt.PromptUsed,
		})
	}
	return out
}
