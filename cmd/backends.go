package cmd

import (
	"fmt"
	"io"
	"log"
	"text/tabwriter"

	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/models"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the configured backends",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if err := printBackends(cmd.OutOrStdout(), cfg.ResolvedBackends()); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func printBackends(out io.Writer, backends []models.Backend) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tMODEL\tMAX TOKENS\tENDPOINT")
	for _, b := range backends {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.Key, b.Model, b.MaxTokens, b.Endpoint)
	}
	return w.Flush()
}
