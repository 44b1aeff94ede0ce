package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/crawler"
)

// errPassSkipped is returned when another pass holds the lock.
var errPassSkipped = errors.New("pass skipped: another pass is already running")

func newRunCmd() *cobra.Command {
	var (
		force     bool
		sourceIDs []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single scraping pass and prints a summary",
		Long: `Runs one orchestrator pass over the active sources. Without --force only
sources whose scraping frequency has elapsed are scraped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			runType := crawler.RunTypeScheduled
			if force {
				runType = crawler.RunTypeManual
			}
			a.Logger().Info("pass starting from cli",
				zap.String("run_type", string(runType)),
				zap.Strings("source_ids", sourceIDs),
			)
			res := a.Orchestrator().RunPass(cmd.Context(), crawler.PassRequest{
				ForceRun:  force,
				SourceIDs: sourceIDs,
			})
			if res.Skipped {
				return errPassSkipped
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				return nil
			}
			return printPass(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "scrape every selected source regardless of its frequency")
	cmd.Flags().StringSliceVar(&sourceIDs, "source", nil, "restrict the pass to these source ids (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw pass result as JSON")
	return cmd
}

func printPass(w io.Writer, res crawler.OrchestrationResult) error {
	data := pterm.TableData{{"Source", "Status", "Technique", "Found", "Pages", "Saved", "Errors", "Took"}}
	for _, s := range res.SourcesProcessed {
		status := string(s.Status)
		if s.Skipped {
			status = "not due"
		}
		data = append(data, []string{
			s.SourceName,
			status,
			s.TechniqueUsed,
			humanize.Comma(int64(s.JobsFound)),
			strconv.Itoa(s.PagesScraped),
			humanize.Comma(int64(s.JobsSaved)),
			strconv.Itoa(s.ErrorsCount),
			(time.Duration(s.ExecutionMilli) * time.Millisecond).String(),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "\n%s runs, %s scraped, %s processed, %s saved in %s\n",
		humanize.Comma(int64(res.RunsExecuted)),
		humanize.Comma(int64(res.TotalJobsScraped)),
		humanize.Comma(int64(res.TotalJobsProcessed)),
		humanize.Comma(int64(res.TotalJobsSaved)),
		res.ExecutionTime.Round(time.Millisecond),
	)
	if res.ListingsDeactivated > 0 || res.RunsPurged > 0 {
		fmt.Fprintf(w, "retention: %s listings deactivated, %s runs purged\n",
			humanize.Comma(res.ListingsDeactivated), humanize.Comma(res.RunsPurged))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error: %s\n", e.Error)
	}
	return nil
}
