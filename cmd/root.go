package cmd

import (
	"fmt"
	"os"

	"github.com/chew-z/vision-dispatch/internal/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vision-dispatch",
	Short: "Ask several vision-language models about one image at once",
	Long: `Vision Dispatch accepts an image and a question, sends them to every
configured vision model in parallel and returns one answer per model.

It serves a small upload page and a JSON endpoint on port 8000 by default,
and can also query the models once from the command line.`,
	Version: server.Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
