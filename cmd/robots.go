package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRobotsCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "robots <url>",
		Short: "Checks whether robots.txt lets the crawler fetch a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if agent == "" {
				agent = a.Config().Crawler.RobotsAgent
			}
			res := a.Robots().Check(cmd.Context(), args[0], agent)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url:         %s\n", args[0])
			fmt.Fprintf(out, "agent:       %s\n", agent)
			fmt.Fprintf(out, "allowed:     %t\n", res.Allowed)
			fmt.Fprintf(out, "crawl delay: %dms\n", res.CrawlDelayMs)
			if res.RobotsURL != "" {
				fmt.Fprintf(out, "robots.txt:  %s\n", res.RobotsURL)
			}
			fmt.Fprintf(out, "reason:      %s\n", res.Reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "user-agent token to match (default crawler.robots_agent)")
	return cmd
}
