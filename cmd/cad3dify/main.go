package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cad3dify/internal/config"
	"cad3dify/internal/logging"
	"cad3dify/internal/perception"
	"cad3dify/internal/pipeline"
	"cad3dify/internal/prompt"
	"cad3dify/internal/render"
	"cad3dify/internal/repair"
	"cad3dify/internal/sandbox"
)

var (
	// Global flags
	verbose     bool
	workspace   string
	outputPath  string
	refinements int
	modelKind   string
	modelName   string
	python      string
	renderCmd   string
	temperature float64
	execTimeout time.Duration

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cad3dify [image]",
	Short: "cad3dify - 2D CAD drawing to 3D STEP model",
	Long: `cad3dify converts a 2D CAD drawing image into a 3D solid model.

It asks a vision-capable LLM to write a CadQuery script for the drawing,
executes the script in a sandbox, renders the resulting solid, and feeds
the rendering back to the model for a bounded number of refinement rounds.

The provider is taken from .cad3dify/config.json or, failing that, from
the first of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY set in the
environment.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory (config and logs)")

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "output.step", "output STEP file path")
	rootCmd.Flags().IntVarP(&refinements, "refinements", "n", 0, "number of refinement rounds (default 3)")
	rootCmd.Flags().StringVar(&modelKind, "model", "gpt", "model kind: gpt, claude, gemini, llama")
	rootCmd.Flags().StringVar(&modelName, "model-name", "", "exact model name override")
	rootCmd.Flags().StringVar(&python, "python", "", "python interpreter for script execution")
	rootCmd.Flags().StringVar(&renderCmd, "render-cmd", "", "external render command template with {model} and {image} tokens")
	rootCmd.Flags().Float64Var(&temperature, "temperature", 0.0, "oracle sampling temperature")
	rootCmd.Flags().DurationVar(&execTimeout, "exec-timeout", 5*time.Minute, "per-script execution timeout")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("cannot read input image: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	userCfg, err := config.LoadOrDefault(filepath.Join(workspace, config.DefaultUserConfigPath()))
	if err != nil {
		return err
	}
	applyFlagOverrides(userCfg)

	providerCfg, err := resolveProvider(userCfg)
	if err != nil {
		return err
	}

	// An explicit --model wins; otherwise the detected provider picks the
	// matching profile.
	if !cmd.Flags().Changed("model") {
		modelKind = string(kindForProvider(providerCfg.Provider))
	}
	profile := perception.ProfileFor(perception.ModelKind(modelKind), temperature)
	logger.Info("starting pipeline",
		zap.String("image", imagePath),
		zap.String("output", outputPath),
		zap.String("provider", string(providerCfg.Provider)),
		zap.String("model_kind", modelKind),
		zap.Int("refinements", userCfg.Refinements))

	oracle, err := perception.NewOracle(ctx, providerCfg, profile)
	if err != nil {
		return err
	}

	executor := sandbox.NewExecutor(sandbox.Config{
		Python:  userCfg.Python,
		Timeout: execTimeout,
	})

	var renderer render.Renderer
	if userCfg.RenderCmd != "" {
		renderer = render.NewCommandRenderer(userCfg.RenderCmd)
	} else {
		renderer = render.NewPythonRenderer(executor)
	}

	controller := pipeline.NewController(
		oracle,
		prompt.NewBuilder(profile),
		repair.NewAgent(oracle, executor, profile),
		renderer,
		"",
	)

	summary, err := controller.Run(ctx, pipeline.Options{
		ImagePath:   imagePath,
		OutputPath:  outputPath,
		Refinements: userCfg.Refinements,
	})
	if err != nil {
		return err
	}

	committed := 0
	for _, round := range summary.Rounds {
		if !round.Skipped {
			committed++
		}
	}
	logger.Info("pipeline finished",
		zap.Int("oracle_calls", summary.OracleCalls),
		zap.Int("rounds_committed", committed),
		zap.Int("rounds_skipped", len(summary.Rounds)-committed))
	fmt.Printf("Model written to %s (%d/%d refinement rounds contributed)\n",
		outputPath, committed, len(summary.Rounds))
	return nil
}

// applyFlagOverrides lets explicit flags win over the config file.
func applyFlagOverrides(cfg *config.UserConfig) {
	if refinements > 0 {
		cfg.Refinements = refinements
	}
	if python != "" {
		cfg.Python = python
	}
	if renderCmd != "" {
		cfg.RenderCmd = renderCmd
	}
	if modelName != "" {
		cfg.Model = modelName
	}
}

func kindForProvider(p perception.Provider) perception.ModelKind {
	switch p {
	case perception.ProviderAnthropic:
		return perception.ModelClaude
	case perception.ProviderGemini:
		return perception.ModelGemini
	case perception.ProviderVertexAI:
		return perception.ModelLlama
	default:
		return perception.ModelGPT
	}
}

func resolveProvider(cfg *config.UserConfig) (*perception.ProviderConfig, error) {
	if provider, key := cfg.ActiveProvider(); key != "" {
		return &perception.ProviderConfig{
			Provider: perception.Provider(provider),
			APIKey:   key,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
		}, nil
	}
	detected, err := perception.DetectProvider(workspace)
	if err != nil {
		return nil, err
	}
	if cfg.Model != "" {
		detected.Model = cfg.Model
	}
	return detected, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
