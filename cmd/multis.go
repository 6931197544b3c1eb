package cmd

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkontridze/reorg/internal/document"
	"github.com/gkontridze/reorg/internal/output"
	"github.com/gkontridze/reorg/internal/reddit"
	"github.com/gkontridze/reorg/internal/sync"
)

var (
	multiSortKeys = []string{"name", "sub_count"}
	multisSort    *enumValue
)

type multiRow struct {
	Name       string   `json:"name"`
	Visibility string   `json:"visibility"`
	SubCount   int      `json:"sub_count"`
	Subs       []string `json:"subs"`
}

var multisCmd = &cobra.Command{
	Use:     "multis",
	Aliases: []string{"feeds"},
	Short:   "Inspect and reconcile custom feeds",
	GroupID: "feeds",
}

var multisListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your custom feeds",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		multis, err := client.Multireddits(ctx)
		if err != nil {
			return err
		}
		rows := buildMultiRows(multis)
		sortMultiRows(rows, multisSort.String())

		if jsonOut {
			return output.JSON(rows)
		}
		if len(rows) == 0 {
			output.Info("No custom feeds")
			return nil
		}
		table := make([][]string, len(rows))
		for i, r := range rows {
			table[i] = []string{r.Name, strconv.Itoa(r.SubCount), r.Visibility}
		}
		output.Info("%s", output.Table([]string{"name", "sub_count", "visibility"}, table, 50))
		return nil
	},
}

var multisGenconfCmd = &cobra.Command{
	Use:   "genconf",
	Short: "Write the current remote feeds as a document",
	Long: `Snapshot every custom feed into a YAML document.

Feed names and subs are sorted. With --output - the document is written to
stdout; otherwise the target file is replaced atomically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")
		path = documentPath(path)

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		remote, err := fetchRemote(ctx, client)
		if err != nil {
			return err
		}
		desired := sync.Generate(remote).Sorted()

		store := document.New(path)
		if err := store.Save(desired); err != nil {
			return err
		}
		if !store.IsStdio() {
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			output.Success("wrote %s (%s)", abs, output.Plural(len(desired), "feed"))
		}
		return nil
	},
}

var multisPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what apply would change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		jsonOut, _ := cmd.Flags().GetBool("json")

		desired, err := loadDocument(documentPath(input), jsonOut)
		if err != nil {
			return err
		}
		if err := desired.Validate(); err != nil {
			return err
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		remote, err := fetchRemote(ctx, client)
		if err != nil {
			return err
		}
		plan, err := sync.BuildPlan(desired, remote)
		if err != nil {
			return err
		}

		if jsonOut {
			return output.JSON(plan)
		}
		output.Info("%s", output.FormatPlan(plan))
		return nil
	},
}

func buildMultiRows(multis []reddit.Multi) []multiRow {
	rows := make([]multiRow, len(multis))
	for i := range multis {
		subs := multis[i].SubNames()
		sort.Strings(subs)
		rows[i] = multiRow{
			Name:       multis[i].Name,
			Visibility: multis[i].Visibility,
			SubCount:   len(subs),
			Subs:       subs,
		}
	}
	return rows
}

// sortMultiRows sorts by key; "sub_count" sorts largest first, ties by name.
func sortMultiRows(rows []multiRow, key string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if key == "sub_count" && a.SubCount != b.SubCount {
			return a.SubCount > b.SubCount
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func init() {
	multisSort = addSortFlag(multisListCmd.Flags(), "name", multiSortKeys)
	multisListCmd.Flags().Bool("json", false, "output as JSON")

	multisGenconfCmd.Flags().StringP("output", "o", "", `document to write, "-" for stdout (default $XDG_CONFIG_HOME/reorg.yaml)`)

	multisPlanCmd.Flags().StringP("input", "i", "", `document to read, "-" for stdin (default $XDG_CONFIG_HOME/reorg.yaml)`)
	multisPlanCmd.Flags().Bool("json", false, "output the plan as JSON")

	multisCmd.AddCommand(multisListCmd, multisGenconfCmd, multisPlanCmd)
	rootCmd.AddCommand(multisCmd)
}
