package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemindersCmd returns the reminders command group.
func NewRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Query and acknowledge reminders",
	}
	cmd.AddCommand(newRemindersDueCmd(), newRemindersAckCmd(), newRemindersDispatchCmd())
	return cmd
}

func newRemindersDueCmd() *cobra.Command {
	var (
		orgID string
		asOf  string
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List untriggered reminders of open instances that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseOptionalDate("as-of", asOf)
			if err != nil {
				return err
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			reminders, err := b.Service().DueReminders(ctx, orgID, date)
			if err != nil {
				return err
			}
			return PrintResult(cmd, reminderView(reminders))
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&asOf, "as-of", "", "date YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newRemindersAckCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "ack ID",
		Short: "Record that a reminder was delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseOptionalDate("at", at)
			if err != nil {
				return err
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			r, changed, err := b.Service().MarkReminderTriggered(ctx, args[0], when)
			if err != nil {
				return err
			}
			if !changed {
				PrintSuccess(cmd, fmt.Sprintf("reminder %s was already triggered", r.ID))
			}
			return PrintResult(cmd, reminderView{r})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "delivery date YYYY-MM-DD (default: now)")
	return cmd
}

func newRemindersDispatchCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Publish reminder events for every organization now instead of waiting for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseOptionalDate("as-of", asOf)
			if err != nil {
				return err
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			report, err := b.Jobs().DispatchReminders(ctx, date)
			if err != nil {
				return err
			}
			return PrintResult(cmd, jobView{report})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "date YYYY-MM-DD (default: today)")
	return cmd
}

//Personal.AI order the ending
