package cmd

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/models"
	"github.com/chew-z/vision-dispatch/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	defaultHost = "127.0.0.1"
	defaultPort = 8000
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	Long: `Start the HTTP server that accepts image uploads on /upload_and_query
and fans each one out to the configured vision models.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", defaultHost, "Host to bind the server to")
	serveCmd.Flags().IntP("port", "p", defaultPort, "Port to listen on")
	serveCmd.Flags().BoolP("debug", "d", false, "Enable debug mode (verbose logging)")
	serveCmd.Flags().BoolP("verbose", "v", false, "Enable terminal output (default: quiet)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			log.Fatal("API key is not configured. Please run 'vision-dispatch config set api_key YOUR_API_KEY' or set GROQ_API_KEY environment variable.")
		}
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags win over config only when they were given explicitly
	host, port := cfg.Host, cfg.Port
	if cmd.Flags().Changed("host") || host == "" {
		host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") || port == 0 {
		port, _ = cmd.Flags().GetInt("port")
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}

	logger, err := logging.New(logging.Options{Debug: cfg.Debug, Verbose: cfg.Verbose})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)
	gin.DefaultWriter = logger.Writer()
	gin.DefaultErrorWriter = logger.Writer()

	srv := server.NewServer(cfg, host, port)

	go func() {
		logger.Info("starting server",
			"addr", host, "port", port,
			"backends", models.Keys(cfg.ResolvedBackends()),
			"base_url", cfg.BaseURL)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := server.CreateShutdownContext(30 * time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("server exited gracefully")
}
