package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	configFlag     string
	countFlag      int
	keepSourceFlag bool
	reportOnlyFlag bool
	resizeFlag     bool
)

// rootCmd is the main Cobra command for the publisher.
var rootCmd = &cobra.Command{
	Use:   "reddit-publisher",
	Short: "Publish queued Dropbox media to Reddit",
	Long: `Reddit Video Publisher drains a Dropbox folder of queued videos and
images, prepares each one (validation, constraint transcoding, thumbnail
extraction), and posts it to a subreddit with automatic fallback
submission, readiness polling, ghost-post recovery, and crossposting.

Credentials come from the environment (a .env file is honored) or an
optional YAML config file.

Examples:
  reddit-publisher                       # publish one random queued file
  reddit-publisher -n 3                  # publish three files
  reddit-publisher --config config.yaml  # explicit config file
  reddit-publisher --report-only         # print the folder report and exit
  reddit-publisher --keep-source         # do not delete published files from Dropbox`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to YAML config file (optional)")
	rootCmd.Flags().IntVarP(&countFlag, "count", "n", 1, "Number of queued files to publish this run")
	rootCmd.Flags().BoolVar(&keepSourceFlag, "keep-source", false, "Keep published files in Dropbox instead of deleting them")
	rootCmd.Flags().BoolVar(&reportOnlyFlag, "report-only", false, "Print the Dropbox folder report and exit")
	rootCmd.Flags().BoolVar(&resizeFlag, "resize", false, "Re-encode videos to a 720p target box before upload")
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
