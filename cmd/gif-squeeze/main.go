package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gif-squeeze-go/internal/compressor"
	"gif-squeeze-go/internal/config"
	"gif-squeeze-go/internal/history"
	"gif-squeeze-go/internal/logger"
	"gif-squeeze-go/internal/runner"
	"gif-squeeze-go/internal/statistics"
	"gif-squeeze-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	sourceDir     string
	targetDir     string
	dryRun        bool
	verbose       bool
	quiet         bool
	after         string
	timeField     string
	optimizeLevel int
	lossy         int
	colors        int
	skipLarger    bool
	enableHistory bool
	version       string
	buildTime     string
	port          int
	historyLimit  int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "gif-squeeze",
	Short: "Batch-compress GIF files with gifsicle",
	Long: `gif-squeeze compresses every *.gif file in a directory by invoking
the external gifsicle tool once per file, replacing each original atomically
with the compressed output and reporting size savings.

Features:
- Lossy GIF compression via gifsicle (-O3 --lossy=80 --colors 256 by default)
- Atomic in-place replacement through a sibling temporary file
- Per-file error handling: one bad file never aborts the batch
- Optional modification-time filter and dry-run mode
- Optional sqlite history of compression results
- Run summary with aggregate size savings`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// scanCmd lists matching files without modifying anything.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "List GIF files and sizes without compressing them",
	Long: `Scan the specified directory (or the configured source directory)
and display the GIF files that a compression run would process, without
invoking gifsicle or touching any file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

// checkCmd reports gifsicle availability.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that gifsicle is available on PATH",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck()
	},
}

// historyCmd lists recent compression records.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent compression results from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory()
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts a web server with an HTTP API and WebSocket progress feed.
The interface allows you to:
- List the GIF files a run would process
- Trigger scan and compression runs
- Monitor progress and statistics in real time
- Browse the compression history

Access the interface at http://localhost:<port> (default: 8080)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging to the console")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&sourceDir, "source", "", "directory containing GIF files (default: current directory)")
	rootCmd.Flags().StringVar(&targetDir, "target", "", "directory for compressed output (default: replace in place)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be compressed without making changes")
	rootCmd.Flags().StringVar(&after, "after", "", "only process files newer than this (unix ts, YYYY-MM-DD, or YYYY-MM-DD HH:MM:SS)")
	rootCmd.Flags().StringVar(&timeField, "time-field", "", "time field for the after filter: mtime or ctime")
	rootCmd.Flags().IntVar(&optimizeLevel, "optimize", 3, "gifsicle optimization level (1-3)")
	rootCmd.Flags().IntVar(&lossy, "lossy", 80, "gifsicle lossy threshold (0-200)")
	rootCmd.Flags().IntVar(&colors, "colors", 256, "palette cap (2-256)")
	rootCmd.Flags().BoolVar(&skipLarger, "skip-larger", false, "keep the original when the compressed output is not smaller")
	rootCmd.Flags().BoolVar(&enableHistory, "history", false, "record results to the sqlite history database")

	scanCmd.Flags().StringVar(&after, "after", "", "only list files newer than this")
	scanCmd.Flags().StringVar(&timeField, "time-field", "", "time field for the after filter: mtime or ctime")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "number of records to show")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.gif-squeeze")
		viper.AddConfigPath("/etc/gif-squeeze")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runCompress executes the batch compression.
func runCompress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	comp := compressor.NewGifsicle(paramsFromConfig(cfg), log)
	if err := comp.Check(); err != nil {
		// Recorded in the log as well as stderr so failed unattended runs
		// can be diagnosed from error.log alone.
		log.Errorf("Aborting: %v", err)
		return err
	}

	stats := statistics.NewStatistics()
	br := runner.NewBatchRunner(cfg, log, stats, comp)

	if cfg.History.Enabled && !cfg.Security.DryRun {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warnf("History disabled: %v", err)
		} else {
			defer store.Close()
			br.SetHistory(store)
		}
	}

	if err := br.CompressFiles(context.Background()); err != nil {
		return fmt.Errorf("compression run failed: %w", err)
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		if stats.GetFilesFailed() > 0 {
			fmt.Println("\n" + stats.GetErrorSummary())
		}
	}

	return nil
}

// runScan runs discovery in dry-run mode and prints what was found.
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Security.DryRun = true

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	comp := compressor.NewGifsicle(paramsFromConfig(cfg), log)
	br := runner.NewBatchRunner(cfg, log, stats, comp)

	if err := br.CompressFiles(context.Background()); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
	}

	return nil
}

// runCheck reports whether gifsicle is usable.
func runCheck() error {
	log := logrus.New()
	comp := compressor.NewGifsicle(compressor.DefaultParams(), log)

	if err := comp.Check(); err != nil {
		return err
	}

	ver, err := comp.Version()
	if err != nil {
		fmt.Println("gifsicle found on PATH (version query failed)")
		return nil
	}
	fmt.Printf("gifsicle found: %s\n", ver)
	return nil
}

// runHistory prints recent records from the history database.
func runHistory() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	records, err := store.Recent(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No history records found")
		return nil
	}

	for _, rec := range records {
		switch rec.Status {
		case history.StatusCompressed:
			fmt.Printf("%s  %-10s  %s  %s -> %s (%d%%)\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Status,
				rec.FilePath,
				statistics.FormatBytes(rec.OriginalSize),
				statistics.FormatBytes(rec.CompressedSize),
				rec.PercentSaved)
		case history.StatusFailed:
			fmt.Printf("%s  %-10s  %s  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Status,
				rec.FilePath,
				rec.Error)
		default:
			fmt.Printf("%s  %-10s  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Status,
				rec.FilePath)
		}
	}

	total, err := store.TotalSaved()
	if err == nil {
		fmt.Printf("\nTotal saved across all runs: %s\n", statistics.FormatBytes(total))
	}

	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			log.Warnf("History disabled: %v", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	server := web.NewServer(cfg, log, store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("gif-squeeze web interface started on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop the server")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if sourceDir != "" {
		cfg.SourceDirectory = sourceDir
	} else if len(args) > 0 {
		cfg.SourceDirectory = args[0]
	}
	if cfg.SourceDirectory == "" {
		cfg.SourceDirectory = "."
	}

	if targetDir != "" {
		cfg.TargetDirectory = &targetDir
	}
	if dryRun {
		cfg.Security.DryRun = true
	}
	if after != "" {
		cfg.Filter.After = after
	}
	if timeField != "" {
		cfg.Filter.TimeField = timeField
	}
	if enableHistory {
		cfg.History.Enabled = true
	}

	if cmd.Flags().Changed("optimize") {
		cfg.Compression.OptimizeLevel = optimizeLevel
	}
	if cmd.Flags().Changed("lossy") {
		cfg.Compression.Lossy = lossy
	}
	if cmd.Flags().Changed("colors") {
		cfg.Compression.Colors = colors
	}
	if skipLarger {
		cfg.Compression.SkipLarger = true
	}

	// Flag overrides must pass the same validation as file values.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// paramsFromConfig maps the compression section onto gifsicle parameters.
func paramsFromConfig(cfg *config.Config) compressor.Params {
	return compressor.Params{
		OptimizeLevel: cfg.Compression.OptimizeLevel,
		Lossy:         cfg.Compression.Lossy,
		Colors:        cfg.Compression.Colors,
		SkipLarger:    cfg.Compression.SkipLarger,
	}
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose && !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
