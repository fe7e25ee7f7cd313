package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the event log and the events database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig(cmd)
			ctx := cmd.Context()

			p, err := connect(ctx, config)
			if err != nil {
				return err
			}
			defer p.close()

			fmt.Printf("ConnectStorm status at %s\n\n", time.Now().UTC().Format(time.RFC3339))

			backlog, err := p.log.Backlog(ctx)
			if err != nil {
				return err
			}
			pending, err := p.log.Pending(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Event log (%s)\n", config.Stream)
			fmt.Printf("  entries in stream:  %d\n", backlog)
			fmt.Printf("  pending:            %d\n", pending.Count)
			if pending.OldestID != "" {
				fmt.Printf("  oldest pending id:  %s\n", pending.OldestID)
			}
			for consumer, count := range pending.Consumers {
				fmt.Printf("  pending for %-16s %d\n", consumer+":", count)
			}

			stats, err := p.store.GetStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\nEvents database\n")
			fmt.Printf("  total events:       %d\n", stats.TotalEvents)
			fmt.Printf("  total size:         %s\n", formatBytes(stats.TotalBytes))
			fmt.Printf("  last hour:          %d\n", stats.LastHour)
			fmt.Printf("  last 24 hours:      %d\n", stats.LastDay)
			if len(stats.TopUploaders) > 0 {
				fmt.Printf("  top uploaders:\n")
				for _, u := range stats.TopUploaders {
					fmt.Printf("    %-20s %d\n", u.UploaderID, u.Events)
				}
			}
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTP"[exp])
}
