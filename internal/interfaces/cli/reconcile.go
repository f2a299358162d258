package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

type reconcileResult struct {
	OrganizationID string `json:"organization_id"`
	Reconciled     int    `json:"reconciled"`
}

func (r reconcileResult) TableHeaders() []string { return []string{"ORGANIZATION", "RECONCILED"} }
func (r reconcileResult) TableRows() [][]string {
	return [][]string{{r.OrganizationID, strconv.Itoa(r.Reconciled)}}
}

// NewReconcileCmd returns the command that persists OVERDUE for past-due
// instances, for one organization or all of them.
func NewReconcileCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark past-due pending instances OVERDUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			if orgID != "" {
				n, err := b.Service().ReconcileOverdue(ctx, orgID)
				if err != nil {
					return err
				}
				return PrintResult(cmd, reconcileResult{OrganizationID: orgID, Reconciled: n})
			}
			report, err := b.Jobs().ReconcileAll(ctx)
			if err != nil {
				return err
			}
			return PrintResult(cmd, jobView{report})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id (default: every organization with stale instances)")
	return cmd
}

type regenerationView struct {
	*app.RegenerationReport
}

func (v regenerationView) TableHeaders() []string {
	return []string{"ATTEMPTED", "RECOVERED", "FAILED"}
}

func (v regenerationView) TableRows() [][]string {
	return [][]string{{strconv.Itoa(v.Attempted), strconv.Itoa(v.Recovered), strings.Join(v.Failed, ",")}}
}

// NewRegenerateCmd returns the command that retries successor creation for
// completed recurring instances whose next cycle is missing.
func NewRegenerateCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Create missing successors of completed recurring instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return errors.InvalidParam("limit must be >= 1").WithDetailf("limit=%d", limit)
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			report, err := b.Service().RetryPendingRegenerations(ctx, limit)
			if err != nil {
				return err
			}
			return PrintResult(cmd, regenerationView{report})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum instances to process")
	return cmd
}

//Personal.AI order the ending
