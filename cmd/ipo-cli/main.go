package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"ipotracker/internal/adapters/downloader"
	"ipotracker/internal/adapters/github"
	"ipotracker/internal/config"
	"ipotracker/internal/log"
)

var (
	cfg *config.Config

	flagVerbose bool   // value of --verbose
	flagEnvFile string // value of --env-file

	flagCSV      string
	flagOutDir   string
	flagFormat   string
	flagInterval time.Duration
	flagTimeout  time.Duration
	flagApplyID  string
	flagAddr     string
)

func main() {
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "env file to load, default is .env.local and .env in the current directory")
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initCLI

	applyCmd.Flags().StringVar(&flagCSV, "csv", "", "CSV file with one account per row (required)")
	applyCmd.Flags().StringVar(&flagOutDir, "out-dir", "", "export logs and summary under this directory")
	applyCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, json or yaml")
	applyCmd.Flags().DurationVar(&flagInterval, "interval", 0, "poll interval, overrides IPO_POLL_INTERVAL")
	applyCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "polling ceiling, overrides IPO_POLL_TIMEOUT")
	_ = applyCmd.MarkFlagRequired("csv")

	fetchCmd.Flags().StringVar(&flagApplyID, "apply-id", "", "id of a dispatched job (required)")
	fetchCmd.Flags().StringVar(&flagCSV, "csv", "", "CSV file used for the job, names the accounts")
	fetchCmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, json or yaml")
	_ = fetchCmd.MarkFlagRequired("apply-id")

	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides IPO_LISTEN_ADDR")

	rootCmd.AddCommand(applyCmd, fetchCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("ipo-cli failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "ipo-cli",
	Short:        "Dispatch IPO application batches to GitHub Actions and track their results",
	SilenceUsage: true,
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "submit the accounts of a CSV file and wait for the per-account result",
	RunE:  doApply,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "download and parse the log of an already dispatched job",
	RunE:  doFetch,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API",
	RunE:  doServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version())
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
	},
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "ipo-cli: (devel)"
	}
	return "ipo-cli: " + info.Main.Version
}

func initCLI(cmd *cobra.Command, _ []string) error {
	slog.SetDefault(log.New(flagVerbose))

	var err error
	if flagEnvFile != "" {
		cfg, err = config.Load(flagEnvFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	slog.Debug("configuration loaded",
		"repository", cfg.Repository,
		"token_set", cfg.Token != "",
		"poll_interval", cfg.PollInterval,
		"poll_timeout", cfg.PollTimeout,
	)
	return nil
}

func newGitHubClient() *github.Client {
	return github.NewClient(cfg.GitHub(), downloader.NewHTTPDownloader(cfg.HTTPTimeout))
}
