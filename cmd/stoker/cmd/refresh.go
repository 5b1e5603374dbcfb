package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stokerbuild/stoker/internal/app"
	"github.com/stokerbuild/stoker/internal/detect"
)

var (
	refreshRoot string
	refreshJSON bool
)

// refreshCmd represents the refresh command.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run a single refresh cycle",
	Long: `Run one refresh cycle against the source tree and print what
changed. Pass --json to feed the result to a build script.

Example:
  stoker refresh
  stoker refresh --root /path/to/site --json`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshRoot, "root", "", "source tree to scan (default: current directory)")
	refreshCmd.Flags().BoolVar(&refreshJSON, "json", false, "print the result as JSON")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyOverrides(cfg, refreshRoot, 0, ""); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	result, err := application.RefreshNow(cmd.Context())
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	if refreshJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printResult(result)
	return nil
}

func printResult(result *detect.Result) {
	fmt.Printf("Scanned %d files in %s\n", result.ScannedFiles, result.Duration.Round(time.Millisecond))

	if !result.Dirty() {
		fmt.Println("No changes detected.")
		return
	}

	printPaths("Added", result.Added)
	printPaths("Changed", result.Changed)
	printPaths("Deleted", result.Deleted)

	if result.InvalidateAll {
		reason := "deletions"
		if result.ExcludedChanged {
			reason = "shared files changed"
		}
		fmt.Printf("Full rebuild required (%s).\n", reason)
	}
}

func printPaths(label string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Printf("%s (%d):\n", label, len(paths))
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
}
