package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/h1b-jobs-crawler/internal/orchestrator"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists active sources and whether each is due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := a.Repository().ListActiveSources(cmd.Context(), nil)
			if err != nil {
				return fmt.Errorf("list sources: %w", err)
			}
			now := time.Now()
			data := pterm.TableData{{"ID", "Name", "Type", "Every", "Last scraped", "Due", "Keywords"}}
			for _, s := range sources {
				last := "never"
				if s.LastScrapedAt != nil {
					last = humanize.RelTime(*s.LastScrapedAt, now, "ago", "from now")
				}
				data = append(data, []string{
					s.ID,
					s.Name,
					s.Type,
					strconv.Itoa(s.ScrapingFrequencyHours) + "h",
					last,
					strconv.FormatBool(orchestrator.IsDue(now, s.LastScrapedAt, s.ScrapingFrequencyHours)),
					strings.Join(s.Keywords, ", "),
				})
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
			if err != nil {
				return fmt.Errorf("render sources: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}
