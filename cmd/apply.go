package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gkontridze/reorg/internal/config"
	"github.com/gkontridze/reorg/internal/lock"
	"github.com/gkontridze/reorg/internal/output"
	"github.com/gkontridze/reorg/internal/sync"
	"github.com/gkontridze/reorg/internal/tui/progress"
)

type applyResult struct {
	User    string                `json:"user"`
	Plan    *sync.Plan            `json:"plan"`
	Report  *sync.ExecutionReport `json:"report,omitempty"`
	Summary *output.ChangeSummary `json:"summary,omitempty"`
}

var multisApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Make remote feeds match the document",
	Long: `Reconcile custom feeds with the document.

Feeds missing from the document are deleted. New feeds are created and subs
missing from existing feeds are added; subs you are not subscribed to are
subscribed to first. Subs are never removed from a feed; extra remote subs
are listed as drift.

Apply asks for confirmation unless --yes is given. Without a terminal on
stdin --yes is required.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		yes, _ := cmd.Flags().GetBool("yes")
		jsonOut, _ := cmd.Flags().GetBool("json")
		markdown, _ := cmd.Flags().GetBool("markdown")
		if jsonOut && markdown {
			return errors.New("--json and --markdown are mutually exclusive")
		}

		desired, err := loadDocument(documentPath(input), jsonOut)
		if err != nil {
			return err
		}
		if err := desired.Validate(); err != nil {
			return err
		}
		if !yes && !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("stdin is not a terminal; pass --yes to apply without confirmation")
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		user, err := client.Me(ctx)
		if err != nil {
			return fmt.Errorf("check identity: %w", err)
		}
		slog.Debug("authenticated", "user", user.Name)

		lk, err := acquireApplyLock()
		if err != nil {
			return err
		}
		defer lk.Release()

		remote, err := fetchRemote(ctx, client)
		if err != nil {
			return err
		}
		plan, err := sync.BuildPlan(desired, remote)
		if err != nil {
			return err
		}

		result := applyResult{User: user.Name, Plan: plan}
		if plan.Empty() {
			if jsonOut {
				return output.JSON(result)
			}
			output.Info("%s", output.FormatPlan(plan))
			return nil
		}

		if !jsonOut {
			output.Info("%s", output.FormatPlan(plan))
		}
		if !yes {
			title := fmt.Sprintf("Apply %s as u/%s?", output.Plural(len(plan.Operations), "operation"), user.Name)
			ok, err := confirm(title)
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}

		report := runPlan(ctx, plan, client)
		summary := output.Summarize(report)
		result.Report, result.Summary = report, &summary

		switch {
		case jsonOut:
			if err := output.JSON(result); err != nil {
				return err
			}
		case markdown:
			md := output.ReportMarkdown(report)
			rendered, err := output.RenderMarkdown(md)
			if err != nil {
				rendered = md
			}
			output.Info("%s", rendered)
		default:
			output.Info("%s", output.FormatReport(report))
		}

		if !report.OK() {
			return fmt.Errorf("%d of %d operations did not apply", report.Failed()+report.Skipped(), len(report.Outcomes))
		}
		return nil
	},
}

// acquireApplyLock serializes apply runs for this user's config directory.
func acquireApplyLock() (*lock.Lock, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	lk := lock.New(filepath.Join(dir, lock.FileName))
	if err := lk.Acquire(lock.DefaultTimeout); err != nil {
		return nil, err
	}
	return lk, nil
}

// runPlan executes plan behind a spinner that shows the operation in flight.
func runPlan(ctx context.Context, plan *sync.Plan, w sync.RemoteWriter) *sync.ExecutionReport {
	var report *sync.ExecutionReport
	total := len(plan.Operations)
	_ = progress.Run(ctx, os.Stderr, "Applying plan", func(ctx context.Context, step progress.Reporter) error {
		done := 0
		step(fmt.Sprintf("1/%d %s", total, output.FormatOperation(plan.Operations[0])))
		report = sync.Execute(ctx, plan, w, sync.ExecuteOptions{
			OnOutcome: func(o sync.Outcome) {
				done++
				slog.Debug("operation finished", "op", o.Op.String(), "status", o.Status, "reason", o.Reason)
				if done < total {
					step(fmt.Sprintf("%d/%d %s", done+1, total, output.FormatOperation(plan.Operations[done])))
				}
			},
		})
		return nil
	})
	return report
}

func init() {
	multisApplyCmd.Flags().StringP("input", "i", "", `document to read, "-" for stdin (default $XDG_CONFIG_HOME/reorg.yaml)`)
	multisApplyCmd.Flags().BoolP("yes", "y", false, "apply without asking for confirmation")
	multisApplyCmd.Flags().Bool("json", false, "output the plan and report as JSON")
	multisApplyCmd.Flags().Bool("markdown", false, "render the report as markdown")
	multisCmd.AddCommand(multisApplyCmd)
}
