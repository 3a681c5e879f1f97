// Package main implements the memctx CLI for operations against a running
// memctxd daemon.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Big0290/memory-context-manager-v2/internal/monitor"
)

var (
	// serverURL is the base URL for the memctxd HTTP server
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctx",
	Short: "CLI for memctxd context orchestration",
	Long: `memctx is a command-line interface for a running memctxd daemon.
It queries context, inspects source health, and watches the daemon live.`,
	Version: version,
}

var (
	queryRequestType string
	queryStrategy    string
	queryJSON        bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9291", "memctxd server URL")

	queryCmd.Flags().StringVar(&queryRequestType, "type", "", "request type hint (urgent, interactive, analysis, research, or a source type)")
	queryCmd.Flags().StringVar(&queryStrategy, "strategy", "", "explicit strategy (immediate, comprehensive, predictive)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the raw JSON response")

	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 2*time.Second, "refresh interval")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(monitorCmd)
}

// queryCmd fetches context for a query string.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Fetch context for a query",
	Long: `Fetch merged context for a query from all healthy sources.

Examples:
  # Interactive query
  memctx query "how does the cache evict entries"

  # Force the comprehensive strategy
  memctx query --strategy comprehensive "refactor the health tracker"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// sourcesCmd lists registered sources and their health.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources and their health",
	RunE:  runSources,
}

var monitorInterval time.Duration

// monitorCmd opens the live dashboard.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch source health live",
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitor.Run(serverURL, monitorInterval)
	},
}

// queryRequest matches pkg/server QueryRequest.
type queryRequest struct {
	Query       string `json:"query"`
	RequestType string `json:"request_type,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// queryResponse is the subset of the daemon response the CLI prints.
type queryResponse struct {
	RequestID       string   `json:"request_id"`
	Strategy        string   `json:"strategy"`
	MergedContent   string   `json:"merged_content"`
	SourcesUsed     []string `json:"sources_used"`
	Recommendations []string `json:"recommendations"`
	Degraded        bool     `json:"degraded"`
	ServedFromCache bool     `json:"served_from_cache"`
	Quality         struct {
		Overall float64 `json:"overall"`
	} `json:"quality"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	reqJSON, err := json.Marshal(queryRequest{
		Query:       args[0],
		RequestType: queryRequestType,
		Strategy:    queryStrategy,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/context/query", serverURL)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if queryJSON {
		fmt.Println(string(body))
		return nil
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(qr.MergedContent)
	fmt.Fprintf(os.Stderr, "\n[memctx] strategy=%s quality=%.2f sources=%v",
		qr.Strategy, qr.Quality.Overall, qr.SourcesUsed)
	if qr.ServedFromCache {
		fmt.Fprint(os.Stderr, " (cached)")
	}
	if qr.Degraded {
		fmt.Fprint(os.Stderr, " (degraded)")
	}
	fmt.Fprintln(os.Stderr)
	for _, rec := range qr.Recommendations {
		fmt.Fprintf(os.Stderr, "[memctx] next: %s\n", rec)
	}
	return nil
}

// sourceInfo matches the registry snapshot JSON.
type sourceInfo struct {
	ID                  string  `json:"id"`
	Type                string  `json:"type"`
	Priority            int     `json:"priority"`
	Health              string  `json:"health"`
	Reliability         float64 `json:"reliability"`
	AvgLatency          int64   `json:"avg_latency"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	TotalCalls          int64   `json:"total_calls"`
}

func runSources(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/v1/sources", serverURL)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var infos []sourceInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("no sources registered")
		return nil
	}

	fmt.Printf("%-12s %-10s %-10s %4s %6s %6s %6s\n",
		"ID", "TYPE", "HEALTH", "PRI", "REL", "FAILS", "CALLS")
	for _, info := range infos {
		fmt.Printf("%-12s %-10s %-10s %4d %6.2f %6d %6d\n",
			info.ID, info.Type, info.Health, info.Priority,
			info.Reliability, info.ConsecutiveFailures, info.TotalCalls)
	}
	return nil
}
