package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// tableProvider is implemented by results that render as a table.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// tableFooter adds a summary line under a table.
type tableFooter interface {
	TableFooter() string
}

// PrintResult writes data in the format selected by -o. Table output falls
// back to JSON for results that have no table form.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	format := OutputTable
	if cliCtx, err := GetCLIContext(cmd); err == nil {
		format = cliCtx.OutputFormat
	}
	if tp, ok := data.(tableProvider); ok && format == OutputTable {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		if f, ok := data.(tableFooter); ok {
			if footer := f.TableFooter(); footer != "" {
				fmt.Fprintln(cmd.OutOrStdout(), footer)
			}
		}
		return nil
	}
	return printJSON(cmd, data)
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a confirmation line to stdout. JSON output stays
// machine-readable, so nothing is printed there.
func PrintSuccess(cmd *cobra.Command, msg string) {
	if cliCtx, err := GetCLIContext(cmd); err == nil && cliCtx.OutputFormat == OutputJSON {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells func(i int) string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			cell := cells(i)
			if i == len(headers)-1 {
				sb.WriteString(cell)
				continue
			}
			sb.WriteString(padRight(cell, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(func(i int) string { return headers[i] })
	writeRow(func(i int) string { return strings.Repeat("-", colWidths[i]) })
	for _, row := range rows {
		row := row
		writeRow(func(i int) string {
			if i < len(row) {
				return row[i]
			}
			return ""
		})
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// ─────────────────────────────────────────────────────────────────────────────
// Views
// ─────────────────────────────────────────────────────────────────────────────

// instanceView renders instances with their urgency bucket.
type instanceView struct {
	Items      []*domain.Instance       `json:"items"`
	Pagination *common.PaginationResult `json:"pagination,omitempty"`

	classify func(*domain.Instance) domain.Urgency
}

func (v instanceView) TableHeaders() []string {
	return []string{"ID", "TITLE", "SUBJECT", "DUE", "STATUS", "URGENCY", "CYCLE"}
}

func (v instanceView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Items))
	for _, inst := range v.Items {
		urgency := "-"
		if v.classify != nil && inst.IsOpen() {
			urgency = string(v.classify(inst))
		}
		rows = append(rows, []string{
			inst.ID,
			inst.Title,
			string(inst.SubjectType) + ":" + inst.SubjectID,
			common.FormatDate(inst.DueDate),
			string(inst.Status),
			urgency,
			strconv.Itoa(inst.CycleIndex),
		})
	}
	return rows
}

func (v instanceView) TableFooter() string {
	if v.Pagination == nil {
		return ""
	}
	return fmt.Sprintf("page %d/%d, %d total", v.Pagination.Page, v.Pagination.TotalPages, v.Pagination.Total)
}

// templateView renders templates.
type templateView []*domain.Template

func (v templateView) TableHeaders() []string {
	return []string{"ID", "OWNER", "SCOPE", "TYPE", "TITLE", "RECURRENCE", "ANCHOR", "ACTIVE"}
}

func (v templateView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, t := range v {
		recurrence := "once"
		if t.Recurring {
			recurrence = fmt.Sprintf("every %d %s", t.RecurrenceEvery, strings.ToLower(string(t.RecurrenceUnit)))
		}
		owner := string(t.OwnerType)
		if org := t.OrgID(); org != "" {
			owner += ":" + org
		}
		rows = append(rows, []string{
			t.ID,
			owner,
			string(t.Scope),
			string(t.ComplianceType),
			t.Title,
			recurrence,
			string(t.Anchor),
			strconv.FormatBool(t.Active),
		})
	}
	return rows
}

// reminderView renders reminders.
type reminderView []*domain.Reminder

func (v reminderView) TableHeaders() []string {
	return []string{"ID", "INSTANCE", "DAYS BEFORE", "TRIGGERED", "MESSAGE"}
}

func (v reminderView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		triggered := "-"
		if r.TriggeredAt != nil {
			triggered = r.TriggeredAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{r.ID, r.InstanceID, strconv.Itoa(r.DaysBefore), triggered, r.Message})
	}
	return rows
}

// completionView renders the outcome of MarkDone.
type completionView struct {
	*domain.CompletionResult
}

func (v completionView) TableHeaders() []string {
	return []string{"ID", "TITLE", "DUE", "STATUS", "SUCCESSOR", "NEXT DUE"}
}

func (v completionView) TableRows() [][]string {
	inst := v.Instance
	successor, next := "-", "-"
	if v.Successor != nil {
		successor = v.Successor.ID
		next = common.FormatDate(v.Successor.DueDate)
	}
	return [][]string{{inst.ID, inst.Title, common.FormatDate(inst.DueDate), string(inst.Status), successor, next}}
}

// jobView renders a batch job report.
type jobView struct {
	*app.JobReport
}

func (v jobView) TableHeaders() []string {
	return []string{"JOB", "SKIPPED", "ORGANIZATIONS", "AFFECTED", "FAILED", "DURATION"}
}

func (v jobView) TableRows() [][]string {
	return [][]string{{
		v.Job,
		strconv.FormatBool(v.Skipped),
		strconv.Itoa(v.Organizations),
		strconv.Itoa(v.Affected),
		strings.Join(v.Failed, ","),
		v.Duration.String(),
	}}
}

//Personal.AI order the ending
