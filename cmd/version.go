package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/exocortex/exocortex/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// NewVersionCmd creates the version command (factory pattern)
func NewVersionCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cfg)
		},
	}
}

func runVersion(cfg *config.Config) error {
	fmt.Printf("Exocortex %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Backend: %s\n", cfg.Backend)
	if cfg.Backend == config.BackendChromem {
		fmt.Printf("  Data dir: %s\n", cfg.DataDir)
	}
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  Embedder model: %s (%d dimensions)\n", cfg.EmbedderModel, cfg.Dimensions)
	fmt.Printf("  Chunking: %d chars, %d overlap\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Printf("  Context budget: %d tokens\n", cfg.ContextBudget)

	// Point at the missing key before the first real command fails on it.
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			fmt.Println()
			fmt.Println("Hint: set the EXOCORTEX_OPENAI_API_KEY environment variable")
		} else {
			fmt.Printf("  OpenAI API key: %s (configured)\n", maskKey(cfg.OpenAIAPIKey))
		}
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			fmt.Println()
			fmt.Println("Hint: set the EXOCORTEX_GEMINI_API_KEY environment variable")
		} else {
			fmt.Printf("  Gemini API key: %s (configured)\n", maskKey(cfg.GeminiAPIKey))
		}
	}

	return nil
}

// maskKey shows just enough of a secret to confirm which one is loaded.
func maskKey(key string) string {
	if len(key) < 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
