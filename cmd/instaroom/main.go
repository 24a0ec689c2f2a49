// Command instaroom turns an Instagram profile into a persona-driven,
// explorable 3D room scene. It runs either as an HTTP service (serve) or as a
// one-shot pipeline run (generate).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"instaroom/internal/config"
	"instaroom/internal/fetch"
	"instaroom/internal/gemini"
	"instaroom/internal/pipeline"
	"instaroom/internal/scrape"
	"instaroom/internal/server"
	"instaroom/internal/worldlabs"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Pipeline flags
	outputDir   string
	dualView    bool
	convertTo3D bool

	// Serve flags
	addr string

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "instaroom",
	Short: "Instaroom - Instagram profiles into explorable 3D rooms",
	Long: `Instaroom analyzes an Instagram account's recent posts, distills them into
a persona and a ranked set of personal objects, designs a room around them,
generates one or two photorealistic viewpoint images with automated critique,
and optionally reconstructs the result as an explorable 3D scene.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments use the environment directly.
		_ = gotenv.Load()

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if outputDir != "" {
			cfg.Pipeline.OutputDir = outputDir
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the HTTP front door:

  POST /api/generate                    start a generation job for a username
  GET  /api/jobs/:id                    poll job status
  GET  /api/rooms/by-username/:username fetch a completed room
  GET  /health                          liveness probe`,
	RunE: runServe,
}

var generateCmd = &cobra.Command{
	Use:   "generate [username]",
	Short: "Run the pipeline once for a username and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "debug artifact directory (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&dualView, "dual-view", true, "generate opposing forward/backward views")
	rootCmd.PersistentFlags().BoolVar(&convertTo3D, "3d", false, "convert the result into a 3D scene")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
}

// buildPipeline constructs the model clients and wires the pipeline. The 3D
// converter is optional: without a World Labs key the pipeline still produces
// 2D results.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	model, err := gemini.NewClient(ctx, cfg.Gemini, logger)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewDownloader(cfg.Pipeline.DownloadConcurrency, logger)

	var converter pipeline.SceneConverter
	if cfg.WorldLabs.APIKey != "" {
		wl, err := worldlabs.NewClient(cfg.WorldLabs, logger)
		if err != nil {
			return nil, err
		}
		converter = wl
	} else if convertTo3D {
		return nil, fmt.Errorf("3D conversion requested but WORLDLABS_API_KEY is not set")
	}

	return pipeline.New(model, model, fetcher, converter, cfg.Pipeline, logger), nil
}

func pipelineOptions() pipeline.Options {
	return pipeline.Options{
		OutputDir:   cfg.Pipeline.OutputDir,
		DualView:    dualView,
		ConvertTo3D: convertTo3D,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	scraper, err := scrape.NewClient(cfg.Apify, logger)
	if err != nil {
		return err
	}

	srv := server.New(scraper, p, pipelineOptions(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	username := args[0]

	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	scraper, err := scrape.NewClient(cfg.Apify, logger)
	if err != nil {
		return err
	}

	logger.Info("scraping profile", zap.String("username", username))
	scraped, err := scraper.Fetch(ctx, username)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, scraped, pipelineOptions())
	if err != nil {
		return err
	}

	summary := map[string]any{
		"run_id":            result.RunID,
		"username":          username,
		"key_objects":       len(result.Profile.KeyObjects),
		"style":             result.Profile.Atmosphere.Style,
		"forward_attempts":  result.Images.Forward.TotalAttempts,
		"backward_attempts": result.Images.Backward.TotalAttempts,
	}
	if result.Scene != nil {
		summary["world_id"] = result.Scene.WorldID
		summary["world_url"] = result.Scene.WorldMarbleURL
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
