package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	settingsPath       string
	outputPath         string
	archivePath        string
	extractionEndpoint string
	skipArchived       bool
	debugMode          bool

	listenAddr     string
	extractTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "news-collector",
	Short: "Fetch configured news sources and write the raw text to a JSON file",
	Long: `Fetches every configured feed and page source concurrently, truncates what each
returns and writes one JSON array for the downstream agent.`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugMode {
			SetDebugMode(true)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		overrides := &ConfigOverrides{
			SettingsPath:       &settingsPath,
			OutputPath:         &outputPath,
			ArchivePath:        &archivePath,
			ExtractionEndpoint: &extractionEndpoint,
		}
		if cmd.Flags().Changed("skip-archived") {
			overrides.SkipArchived = &skipArchived
		}

		config, err := NewConfig(overrides)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		collector, err := NewCollector(config.Settings)
		if err != nil {
			log.Fatalf("Failed to create collector: %v", err)
		}
		defer collector.Close()

		if _, err := collector.Run(cmd.Context()); err != nil {
			collector.Close()
			log.Fatalf("Run failed: %v", err)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings to " + defaultConfigDir + "/settings.yaml",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path, created, err := ensureConfigExists(defaultConfigDir)
		if err != nil {
			log.Fatalf("Init failed: %v", err)
		}
		if created {
			log.Printf("✓ Wrote default settings to %s", path)
		} else {
			log.Printf("Settings already exist at %s", path)
		}
	},
}

var serveExtractCmd = &cobra.Command{
	Use:   "serve-extract",
	Short: "Run a local extraction endpoint compatible with page sources",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		server := NewExtractionServer(extractTimeout, 10*1024*1024)
		srv := &http.Server{
			Addr:              listenAddr,
			Handler:           server.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}

		log.Printf("Extraction endpoint listening on http://%s/crawl", ln.Addr())
		if err := serveUntilDone(cmd.Context(), srv, ln, 5*time.Second); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	},
}

// serveUntilDone serves on ln until ctx is cancelled, then gives in-flight
// requests up to grace to finish
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown failed: %v", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.Flags().StringVar(&settingsPath, "config", "", "Path to settings YAML (default "+defaultConfigDir+"/settings.yaml, then built-in)")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Output JSON path")
	rootCmd.Flags().StringVar(&archivePath, "archive", "", "Path to the sqlite article archive")
	rootCmd.Flags().StringVar(&extractionEndpoint, "extraction-endpoint", "", "Extraction service URL for page sources")
	rootCmd.Flags().BoolVar(&skipArchived, "skip-archived", false, "Skip sources whose URL is already archived")

	serveExtractCmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:8000", "Listen address")
	serveExtractCmd.Flags().DurationVar(&extractTimeout, "fetch-timeout", 45*time.Second, "Timeout for fetching each page")

	rootCmd.AddCommand(initCmd, serveExtractCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
