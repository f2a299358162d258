package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	domain "github.com/turtacn/ComplyTrack/internal/domain/obligation"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/pkg/errors"
	"github.com/turtacn/ComplyTrack/pkg/types/common"
)

// Catalog is the YAML document accepted by `templates import`.
type Catalog struct {
	Organizations []*repositories.Organization `yaml:"organizations"`
	Templates     []*domain.Template           `yaml:"templates"`
}

// catalogSwitches records which templates spell out their boolean switches,
// so omitted ones can take the table defaults instead of false.
type catalogSwitches struct {
	Templates []struct {
		Active    *bool `yaml:"active"`
		Recurring *bool `yaml:"recurring"`
	} `yaml:"templates"`
}

// DecodeCatalog parses and validates a catalog. Unknown keys are rejected
// so typos do not silently drop settings. Templates that omit active or
// recurring get true, matching the stored defaults.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read catalog")
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return nil, errors.Validation("catalog is empty")
		}
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to parse catalog")
	}
	var switches catalogSwitches
	if err := yaml.Unmarshal(raw, &switches); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to parse catalog")
	}

	for i, org := range c.Organizations {
		if org == nil || org.ID == "" {
			return nil, errors.Validation("organization id is required").WithDetailf("organizations[%d]", i)
		}
	}
	for i, t := range c.Templates {
		if t == nil {
			return nil, errors.Validation("template entry is empty").WithDetailf("templates[%d]", i)
		}
		if i < len(switches.Templates) {
			if switches.Templates[i].Active == nil {
				t.Active = true
			}
			if switches.Templates[i].Recurring == nil {
				t.Recurring = true
			}
		}
		if err := t.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, fmt.Sprintf("templates[%d] is invalid", i))
		}
	}
	return &c, nil
}

// NewTemplatesCmd returns the templates command group.
func NewTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect and import obligation templates",
	}
	cmd.AddCommand(newTemplatesListCmd(), newTemplatesGetCmd(), newTemplatesImportCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	var (
		orgID string
		scope string
		asOf  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the effective templates of an organization for one subject type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseSubjectType(scope)
			if err != nil {
				return err
			}
			date, err := parseOptionalDate("as-of", asOf)
			if err != nil {
				return err
			}
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			templates, err := b.Service().GetApplicableTemplates(ctx, orgID, st, date)
			if err != nil {
				return err
			}
			return PrintResult(cmd, templateView(templates))
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&scope, "scope", "", "subject type (PERSON, STRUCTURE, ROLE)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluation date YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func newTemplatesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, _, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			t, err := b.Service().GetTemplate(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, templateView{t})
		},
	}
}

func newTemplatesImportCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import organizations and templates from a YAML catalog",
		Long: "Import organizations and templates from a YAML catalog.\n\n" +
			"Templates with an id are updated in place; templates without one are created,\n" +
			"so re-importing a catalog without ids creates duplicates.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeValidation, "failed to open catalog")
			}
			defer f.Close()

			catalog, err := DecodeCatalog(f)
			if err != nil {
				return err
			}
			if dryRun {
				PrintSuccess(cmd, fmt.Sprintf("catalog is valid: %d organization(s), %d template(s)",
					len(catalog.Organizations), len(catalog.Templates)))
				return nil
			}

			ctx, cancel, cliCtx, b, err := backendFor(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			for _, org := range catalog.Organizations {
				if err := b.Organizations().Upsert(ctx, org); err != nil {
					return err
				}
			}
			saved := make([]*domain.Template, 0, len(catalog.Templates))
			for _, t := range catalog.Templates {
				out, err := b.Service().SaveTemplate(ctx, t)
				if err != nil {
					return fmt.Errorf("failed to save template %q: %w", t.Title, err)
				}
				saved = append(saved, out)
			}
			cliCtx.Logger.Info("catalog imported",
				logging.String("file", file),
				logging.Int("organizations", len(catalog.Organizations)),
				logging.Int("templates", len(saved)))
			return PrintResult(cmd, templateView(saved))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the catalog without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// parseOptionalDate parses a YYYY-MM-DD flag value; empty yields the zero
// time, which the service reads as today.
func parseOptionalDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := common.ParseDate(value)
	if err != nil {
		return time.Time{}, errors.InvalidParam("invalid --" + flag).WithCause(err)
	}
	return d, nil
}

//Personal.AI order the ending
