package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// NewInstancesCmd returns the instances command group.
func NewInstancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instances",
		Aliases: []string{"instance", "inst"},
		Short:   "Generate, list and close obligation instances",
	}
	cmd.AddCommand(
		newInstancesEnsureCmd(),
		newInstancesListCmd(),
		newInstancesGetCmd(),
		newInstancesDoneCmd(),
		newInstancesCancelCmd(),
		newInstancesAdHocCmd(),
	)
	return cmd
}

type subjectFlags struct {
	orgID       string
	subjectType string
	subjectID   string
	structureID string
}

func (f *subjectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&f.subjectType, "subject-type", "", "subject type (PERSON, STRUCTURE, ROLE)")
	cmd.Flags().StringVar(&f.subjectID, "subject", "", "subject id")
	cmd.Flags().StringVar(&f.structureID, "structure", "", "structure the subject belongs to")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("subject-type")
	_ = cmd.MarkFlagRequired("subject")
}

func newInstancesEnsureCmd() *cobra.Command {
	var (
		subject         subjectFlags
		assignmentStart string
		hireDate        string
		lastCompletion  string
		custom          string
		asOf            string
	)
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create the current instance of every applicable template for a subject",
		Long: "Create the current instance of every applicable template for a subject.\n" +
			"Running it again for the same subject creates nothing new.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseSubjectType(subject.subjectType)
			if err != nil {
				return err
			}
			req := &app.EnsureRequest{
				OrganizationID: subject.orgID,
				SubjectType:    st,
				SubjectID:      subject.subjectID,
				StructureID:    subject.structureID,
			}
			for _, a := range []struct {
				flag, value string
				dst         **time.Time
			}{
				{"assignment-start", assignmentStart, &req.Anchors.AssignmentStart},
				{"hire-date", hireDate, &req.Anchors.HireDate},
				{"last-completion", lastCompletion, &req.Anchors.LastCompletion},
				{"anchor-date", custom, &req.Anchors.Custom},
			} {
				d, err := parseOptionalDate(a.flag, a.value)
				if err != nil {
					return err
				}
				if !d.IsZero() {
					*a.dst = &d
				}
			}
			if req.AsOf, err = parseOptionalDate("as-of", asOf); err != nil {
				return err
			}

			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc := b.Service()
			instances, err := svc.EnsureInstancesForSubject(ctx, req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, instanceView{Items: instances, classify: svc.Classify})
		},
	}
	subject.register(cmd)
	cmd.Flags().StringVar(&assignmentStart, "assignment-start", "", "assignment start date YYYY-MM-DD")
	cmd.Flags().StringVar(&hireDate, "hire-date", "", "hire date YYYY-MM-DD")
	cmd.Flags().StringVar(&lastCompletion, "last-completion", "", "last completion date YYYY-MM-DD")
	cmd.Flags().StringVar(&custom, "anchor-date", "", "custom anchor date YYYY-MM-DD")
	cmd.Flags().StringVar(&asOf, "as-of", "", "template evaluation date YYYY-MM-DD (default: today)")
	return cmd
}

func newInstancesListCmd() *cobra.Command {
	var (
		orgID    string
		filter   app.ListFilter
		status   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an organization's instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				filter.Status = st
			}
			if filter.Upcoming && filter.Overdue {
				return errors.InvalidParam("--upcoming and --overdue are mutually exclusive")
			}

			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc := b.Service()
			res, err := svc.ListInstances(ctx, orgID, filter, page, pageSize)
			if err != nil {
				return err
			}
			pagination := res.Pagination
			return PrintResult(cmd, instanceView{Items: res.Items, Pagination: &pagination, classify: svc.Classify})
		},
	}
	f := cmd.Flags()
	f.StringVar(&orgID, "org", "", "organization id")
	f.StringVar(&status, "status", "", "status filter (PENDING, DONE, OVERDUE, CANCELLED)")
	f.StringVar(&filter.SubjectID, "subject", "", "subject id filter")
	f.StringVar(&filter.StructureID, "structure", "", "structure id filter")
	f.StringVar(&filter.TemplateID, "template", "", "template id filter")
	f.BoolVar(&filter.Upcoming, "upcoming", false, "only open instances due today or later")
	f.IntVar(&filter.UpcomingDays, "days", 0, "with --upcoming, only instances due within this many days")
	f.BoolVar(&filter.Overdue, "overdue", false, "only overdue instances")
	f.IntVar(&page, "page", 1, "page number")
	f.IntVar(&pageSize, "limit", 0, "page size (default: engine setting)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newInstancesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc := b.Service()
			inst, err := svc.GetInstance(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, instanceView{Items: []*domain.Instance{inst}, classify: svc.Classify})
		},
	}
}

func newInstancesDoneCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "done ID",
		Short: "Mark an instance done; recurring instances get their next cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			completedAt, err := parseOptionalDate("at", at)
			if err != nil {
				return err
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			res, err := b.Service().MarkDone(ctx, args[0], completedAt)
			if err != nil {
				return err
			}
			return PrintResult(cmd, completionView{res})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "completion date YYYY-MM-DD (default: now)")
	return cmd
}

func newInstancesCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an instance without creating a successor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			inst, err := b.Service().Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, instanceView{Items: []*domain.Instance{inst}})
		},
	}
}

func newInstancesAdHocCmd() *cobra.Command {
	var (
		subject   subjectFlags
		title     string
		due       string
		notes     string
		every     string
		reminders string
		message   string
	)
	cmd := &cobra.Command{
		Use:   "adhoc",
		Short: "Create an instance that is not backed by a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseSubjectType(subject.subjectType)
			if err != nil {
				return err
			}
			dueDate, err := parseOptionalDate("due", due)
			if err != nil {
				return err
			}
			if dueDate.IsZero() {
				return errors.InvalidParam("--due is required")
			}
			req := &app.AdHocInstanceRequest{
				OrganizationID:  subject.orgID,
				SubjectType:     st,
				SubjectID:       subject.subjectID,
				StructureID:     subject.structureID,
				Title:           title,
				DueDate:         dueDate,
				Notes:           notes,
				ReminderMessage: message,
			}
			if every != "" {
				if req.RecurrenceEvery, req.RecurrenceUnit, err = parseEvery(every); err != nil {
					return err
				}
			}
			if req.ReminderDaysBefore, err = parseDayList(reminders); err != nil {
				return err
			}

			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			svc := b.Service()
			inst, err := svc.CreateAdHocInstance(ctx, req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, instanceView{Items: []*domain.Instance{inst}, classify: svc.Classify})
		},
	}
	subject.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "instance title")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&every, "every", "", "recurrence such as 6M, 1Y or 30D (default: one-off)")
	cmd.Flags().StringVar(&reminders, "reminders", "", "comma-separated reminder lead times in days, e.g. 30,7,1")
	cmd.Flags().StringVar(&message, "reminder-message", "", "reminder message")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// parseEvery parses "<n><D|M|Y>" into a recurrence.
func parseEvery(s string) (int, domain.RecurrenceUnit, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	invalid := errors.InvalidParam("invalid --every, expected <n>D, <n>M or <n>Y").WithDetailf("every=%q", s)
	if len(s) < 2 {
		return 0, "", invalid
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 1 {
		return 0, "", invalid
	}
	switch s[len(s)-1] {
	case 'D':
		return n, domain.UnitDay, nil
	case 'M':
		return n, domain.UnitMonth, nil
	case 'Y':
		return n, domain.UnitYear, nil
	}
	return 0, "", invalid
}

// parseDayList parses "30,7,1". Empty yields nil so the engine default
// applies.
func parseDayList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.InvalidParam("invalid --reminders").WithDetailf("value=%q", p)
		}
		days = append(days, n)
	}
	if err := domain.ValidateReminderDays(days); err != nil {
		return nil, err
	}
	return days, nil
}

//Personal.AI order the ending
