package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayuer/tubebot/internal/config"
	"github.com/dayuer/tubebot/internal/utils"
)

var onboardForce bool

var onboardCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"onboard"},
	Short:   "Write a default config file",
	RunE:    runOnboard,
}

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "overwrite an existing config")
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	path := resolvedConfigPath()
	out := cmd.OutOrStdout()

	if utils.FileExists(path) && !onboardForce {
		fmt.Fprintf(out, "Config already exists at %s\n", path)
		return nil
	}
	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	fmt.Fprintf(out, "✓ Created config at %s\n", path)

	fmt.Fprintln(out, "\n🤖 tubebot is almost ready!")
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Add your Telegram bot token and YouTube API key to %s\n", path)
	fmt.Fprintln(out, "     (or set TELEGRAM_BOT_TOKEN and YOUTUBE_API_KEY)")
	fmt.Fprintln(out, "  2. Install yt-dlp")
	fmt.Fprintln(out, "  3. Start: tubebot run")
	return nil
}
