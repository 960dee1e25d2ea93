package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akfldk1028/ARR-sub002/core/agent"
	"github.com/akfldk1028/ARR-sub002/core/agent/httpapi"
)

var (
	searchServer string
	searchLimit  int
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query a running agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return runSearch(cmd.OutOrStdout(), query)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchServer, "server", "http://localhost:8080", "agent base URL")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print raw JSON response")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(out io.Writer, query string) error {
	body, err := json.Marshal(httpapi.SearchRequest{Query: query, Limit: searchLimit})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(searchServer+"/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload)
	}

	if searchJSON {
		fmt.Fprintln(out, string(payload))
		return nil
	}

	var result agent.Response
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printResponse(out, &result)
	return nil
}

func printResponse(out io.Writer, resp *agent.Response) {
	fmt.Fprintf(out, "domain: %s", resp.PrimaryDomain)
	if resp.Stats.CollaborationTrigger {
		fmt.Fprintf(out, " (+%d collaborating)", len(resp.Stats.CollaboratingDomains))
	}
	fmt.Fprintf(out, "  results: %d  latency: %s\n\n", len(resp.Results), resp.Stats.Latency)

	for i, r := range resp.Results {
		marker := " "
		if r.Collaborated {
			marker = "*"
		}
		stages := make([]string, len(r.Stages))
		for j, s := range r.Stages {
			stages[j] = string(s)
		}
		fmt.Fprintf(out, "%2d.%s %-40s %.4f  [%s]\n", i+1, marker, r.NodeID, r.FusedScore, strings.Join(stages, ","))
		if r.Snippet != "" {
			fmt.Fprintf(out, "      %s\n", r.Snippet)
		}
	}
}
