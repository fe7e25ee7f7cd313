package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all events from the log and the database.",
		Long: `Delete every entry from the event log (recreating an empty consumer
group) and truncate the events database. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig(cmd)
			ctx := cmd.Context()

			p, err := connect(ctx, config)
			if err != nil {
				return err
			}
			defer p.close()

			backlog, err := p.log.Backlog(ctx)
			if err != nil {
				return err
			}
			stored, err := p.store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("This will delete %d log entries and %d database rows.\n", backlog, stored)

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				fmt.Print("Type RESET to confirm: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, _ := reader.ReadString('\n')
				if strings.TrimSpace(line) != "RESET" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := p.log.Reset(ctx); err != nil {
				return err
			}
			fmt.Println("Event log cleared, consumer group recreated.")

			if err := p.store.Truncate(ctx); err != nil {
				return err
			}
			fmt.Println("Events database truncated.")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	return cmd
}
