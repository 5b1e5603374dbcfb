package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stokerbuild/stoker/internal/server"
)

var (
	statusHost string
	statusPort int
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running daemon",
	Long: `Query a running stoker daemon over its HTTP API and print the
pipeline status.

Example:
  stoker status
  stoker status --port 9000`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusHost, "host", "", "daemon host (default: from config)")
	statusCmd.Flags().IntVar(&statusPort, "port", 0, "daemon port (default: from config)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	host := cfg.Server.Host
	port := cfg.Server.Port
	if statusHost != "" {
		host = statusHost
	}
	if statusPort != 0 {
		port = statusPort
	}

	url := fmt.Sprintf("http://%s:%d/api/status", host, port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var status server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Printf("State:          %s\n", status.State)
	fmt.Printf("Root:           %s\n", status.Root)
	fmt.Printf("Registry:       %s\n", status.Driver)
	fmt.Printf("Entries:        %d\n", status.EntryCount)
	fmt.Printf("Refresh cycles: %d\n", status.RefreshCount)
	fmt.Printf("Watermark:      %s\n", status.Watermark.Format(time.RFC3339))
	fmt.Printf("Clients:        %d\n", status.Clients)
	fmt.Printf("Uptime:         %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Printf("Version:        %s\n", status.Version)
	if status.LastError != "" {
		fmt.Printf("Last error:     %s\n", status.LastError)
	}

	return nil
}
