package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gkontridze/reorg/internal/config"
	"github.com/gkontridze/reorg/internal/output"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Inspect reorg configuration",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long:  `Prints every setting after env, file and default resolution. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := configRows(cfg)
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			m := make(map[string]string, len(rows))
			for _, r := range rows {
				m[r[0]] = r[1]
			}
			return output.JSON(m)
		}
		output.Info("%s", output.Table([]string{"key", "value"}, rows, 60))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Path != "" {
			output.Info("%s", cfg.Path)
			return nil
		}
		p, err := config.FilePath()
		if err != nil {
			return err
		}
		output.Info("%s (not found)", p)
		return nil
	},
}

func configRows(c *config.Config) [][]string {
	return [][]string{
		{"reddit.client_id", c.Reddit.ClientID},
		{"reddit.client_secret", mask(c.Reddit.ClientSecret)},
		{"reddit.username", c.Reddit.Username},
		{"reddit.password", mask(c.Reddit.Password)},
		{"reddit.user_agent", c.UserAgent(version)},
		{"reddit.api_url", c.Reddit.APIURL},
		{"reddit.token_url", c.Reddit.TokenURL},
		{"timeout", c.Timeout.String()},
		{"requests_per_minute", strconv.Itoa(c.RequestsPerMinute)},
		{"fetch_concurrency", strconv.Itoa(c.FetchConcurrency)},
		{"document", c.Document},
		{"log_level", c.LogLevel},
		{"log_format", c.LogFormat},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configShowCmd.Flags().Bool("json", false, "output as JSON")
	configCmd.AddCommand(configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
