package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/dispatch"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/prompt"
	"github.com/chew-z/vision-dispatch/internal/vision"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Query every backend once and print the answers",
	Long: `Send an image, a question or both to every configured backend and
print the aggregated answers as JSON, keyed by backend.`,
	Example: `  vision-dispatch ask -i cat.png -q "What animal is this?"
  vision-dispatch ask -q "Name three vision benchmarks"`,
	Run: func(cmd *cobra.Command, args []string) {
		imagePath, _ := cmd.Flags().GetString("image")
		query, _ := cmd.Flags().GetString("query")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		verbose, _ := cmd.Flags().GetBool("verbose")

		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		if timeout > 0 {
			cfg.RequestTimeout = timeout
		}

		logger, err := logging.New(logging.Options{Debug: cfg.Debug, Verbose: verbose})
		if err != nil {
			log.Fatalf("Failed to set up logging: %v", err)
		}
		defer logger.Close()

		if err := runAsk(cmd.Context(), cfg, logger.Logger, imagePath, query, cmd.OutOrStdout()); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("image", "i", "", "Path to the image file")
	askCmd.Flags().StringP("query", "q", "", "Question to ask about the image")
	askCmd.Flags().Duration("timeout", 0, "Overall deadline (default: request_timeout from config)")
	askCmd.Flags().BoolP("verbose", "v", false, "Log attempts to stderr")
}

// runAsk performs one dispatch and writes the answers to out as indented JSON
func runAsk(ctx context.Context, cfg *config.Config, logger *slog.Logger, imagePath, query string, out io.Writer) error {
	var img *vision.Image
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		img, err = vision.ValidateMaxPixels(data, filepath.Base(imagePath), cfg.MaxImagePixels)
		if err != nil {
			return err
		}
	}

	content, err := prompt.Build(query, img)
	if errors.Is(err, prompt.ErrEmptyRequest) {
		return errors.New("provide at least --image or --query")
	}
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := dispatch.NewFromConfig(cfg, logger).Dispatch(ctx, content)
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}
	logger.Debug("ask complete", "duration", time.Since(start))

	b, err := sonic.ConfigStd.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
