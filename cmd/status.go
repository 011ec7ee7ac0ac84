package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dayuer/tubebot/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective config and probe a running bot",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "🤖 tubebot Status")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config: %s\n", resolvedConfigPath())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "Config problems:\n%v\n", err)
	} else {
		fmt.Fprintln(out, "Config: ✓ valid")
	}

	raw, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", raw)

	url := healthURL(cfg.Server.Addr)
	st, err := probeHealth(cmd.Context(), url)
	if err != nil {
		fmt.Fprintf(out, "Bot: not reachable at %s (%v)\n", url, err)
		return nil
	}
	fmt.Fprintf(out, "Bot: %s (uptime %ds)\n", st.Status, st.Uptime)
	if st.Bot != "" {
		fmt.Fprintf(out, "Telegram bot: @%s\n", st.Bot)
	}
	for name, running := range st.Channels {
		mark := "✗"
		if running {
			mark = "✓"
		}
		fmt.Fprintf(out, "  %s: %s\n", name, mark)
	}
	fmt.Fprintf(out, "Pending searches: %d\n", st.PendingSessions)
	if st.TrendingAt != nil {
		fmt.Fprintf(out, "Trending: %d videos, refreshed %s\n", st.TrendingCount, st.TrendingAt.Format(time.RFC3339))
	}
	return nil
}

func probeHealth(ctx context.Context, url string) (server.Status, error) {
	var st server.Status
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("decode health (HTTP %d): %w", resp.StatusCode, err)
	}
	return st, nil
}
