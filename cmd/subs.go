package cmd

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkontridze/reorg/internal/models"
	"github.com/gkontridze/reorg/internal/output"
	"github.com/gkontridze/reorg/internal/reddit"
)

// Sort keys accepted by "reorg subs --sort".
var (
	subSortKeys = []string{"url", "display_name", "title", "subscribers"}
	subsSort    *enumValue
)

type subRow struct {
	DisplayName string   `json:"display_name"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Subscribers int      `json:"subscribers"`
	Feeds       []string `json:"feeds"`
}

var subsCmd = &cobra.Command{
	Use:     "subs",
	Short:   "List subscribed subs and the feeds each one is in",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		subs, err := client.Subscriptions(ctx)
		if err != nil {
			return err
		}
		multis, err := client.Multireddits(ctx)
		if err != nil {
			return err
		}

		rows := buildSubRows(subs, multis)
		sortSubRows(rows, subsSort.String())

		if jsonOut {
			return output.JSON(rows)
		}
		if len(rows) == 0 {
			output.Info("No subscriptions")
			return nil
		}
		table := make([][]string, len(rows))
		for i, r := range rows {
			table[i] = []string{r.URL, r.DisplayName, r.Title, strconv.Itoa(r.Subscribers), strings.Join(r.Feeds, ", ")}
		}
		output.Info("%s", output.Table([]string{"url", "display_name", "title", "subscribers", "feeds"}, table, 40))
		return nil
	},
}

// buildSubRows joins subscriptions with the feeds that contain them.
func buildSubRows(subs []reddit.Subreddit, multis []reddit.Multi) []subRow {
	feeds := make(map[string][]string)
	for _, m := range multis {
		for _, s := range m.SubNames() {
			key := models.NormalizeItem(s)
			feeds[key] = append(feeds[key], m.Name)
		}
	}

	rows := make([]subRow, len(subs))
	for i, s := range subs {
		f := feeds[models.NormalizeItem(s.DisplayName)]
		sort.Strings(f)
		rows[i] = subRow{
			DisplayName: s.DisplayName,
			URL:         s.URL,
			Title:       s.Title,
			Subscribers: s.Subscribers,
			Feeds:       f,
		}
	}
	return rows
}

// sortSubRows sorts by key; "subscribers" sorts largest first.
func sortSubRows(rows []subRow, key string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch key {
		case "display_name":
			return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
		case "title":
			return a.Title < b.Title
		case "subscribers":
			return a.Subscribers > b.Subscribers
		default:
			return strings.ToLower(a.URL) < strings.ToLower(b.URL)
		}
	})
}

func init() {
	subsSort = addSortFlag(subsCmd.Flags(), "url", subSortKeys)
	subsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(subsCmd)
}
