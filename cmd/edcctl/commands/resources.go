package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/edc-client/pkg/edc"
	"github.com/Sternrassler/edc-client/pkg/endpoint"
	"github.com/Sternrassler/edc-client/pkg/models"
)

// resourceDef describes how one resource is listed and printed.
type resourceDef[T any] struct {
	use     string
	aliases []string
	short   string
	get     func(*edc.SDK) *endpoint.Endpoint[T]
	header  []string
	row     func(T) []string
}

func newResourceCommand[T any](a *app, def resourceDef[T]) *cobra.Command {
	cmd := &cobra.Command{
		Use:     def.use,
		Aliases: def.aliases,
		Short:   def.short,
	}

	cmd.AddCommand(newListCommand(a, def))
	cmd.AddCommand(newGetCommand(a, def))

	return cmd
}

func newListCommand[T any](a *app, def resourceDef[T]) *cobra.Command {
	var (
		refresh bool
		filters map[string]string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + def.use,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := endpoint.ListOptions{Refresh: refresh}
			if len(filters) > 0 {
				opts.Filters = make(map[string]any, len(filters))
				for k, v := range filters {
					opts.Filters[k] = v
				}
			}

			items, err := def.get(a.sdk).List(commandContext(cmd), opts)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", def.use, err)
			}

			return render(cmd.OutOrStdout(), a.output, items, def.view(items))
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the list cache")
	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "filter as field=value (repeatable)")

	return cmd
}

func newGetCommand[T any](a *app, def resourceDef[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Get one item of " + def.use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := def.get(a.sdk).Get(commandContext(cmd), "", parseID(args[0]))
			if err != nil {
				return fmt.Errorf("failed to get %s %s: %w", def.use, args[0], err)
			}

			return render(cmd.OutOrStdout(), a.output, item, def.view([]T{item}))
		},
	}
}

func (d resourceDef[T]) view(items []T) tableView {
	view := tableView{header: d.header, rows: make([][]string, 0, len(items))}
	for _, item := range items {
		view.rows = append(view.rows, d.row(item))
	}
	return view
}

// parseID keeps numeric ids numeric so the filter is not quoted.
func parseID(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}

func formatTime(ts models.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format("2006-01-02 15:04:05")
}

func newStudiesCommand(a *app) *cobra.Command {
	return newResourceCommand(a, resourceDef[models.Study]{
		use:     "studies",
		aliases: []string{"study"},
		short:   "List and inspect studies",
		get:     (*edc.SDK).Studies,
		header:  []string{"Key", "Name", "Type", "Created"},
		row: func(s models.Study) []string {
			return []string{s.StudyKey, s.StudyName, s.StudyType, formatTime(s.DateCreated)}
		},
	})
}

func newSitesCommand(a *app) *cobra.Command {
	return newResourceCommand(a, resourceDef[models.Site]{
		use:     "sites",
		aliases: []string{"site"},
		short:   "List and inspect sites",
		get:     (*edc.SDK).Sites,
		header:  []string{"ID", "Name", "Status"},
		row: func(s models.Site) []string {
			return []string{strconv.Itoa(s.SiteID), s.SiteName, s.SiteEnrollmentStatus}
		},
	})
}

func newSubjectsCommand(a *app) *cobra.Command {
	return newResourceCommand(a, resourceDef[models.Subject]{
		use:     "subjects",
		aliases: []string{"subject"},
		short:   "List and inspect subjects",
		get:     (*edc.SDK).Subjects,
		header:  []string{"Key", "Status", "Site", "Enrolled"},
		row: func(s models.Subject) []string {
			return []string{s.SubjectKey, s.SubjectStatus, s.SiteName, formatTime(s.EnrollmentStartDate)}
		},
	})
}

func newFormsCommand(a *app) *cobra.Command {
	return newResourceCommand(a, resourceDef[models.Form]{
		use:     "forms",
		aliases: []string{"form"},
		short:   "List and inspect forms",
		get:     (*edc.SDK).Forms,
		header:  []string{"ID", "Key", "Name", "Type"},
		row: func(f models.Form) []string {
			return []string{strconv.Itoa(f.FormID), f.FormKey, f.FormName, f.FormType}
		},
	})
}

func newVariablesCommand(a *app) *cobra.Command {
	return newResourceCommand(a, resourceDef[models.Variable]{
		use:     "variables",
		aliases: []string{"variable", "vars"},
		short:   "List and inspect variables",
		get:     (*edc.SDK).Variables,
		header:  []string{"ID", "Name", "Type", "Form", "Required"},
		row: func(v models.Variable) []string {
			return []string{strconv.Itoa(v.VariableID), v.VariableName, v.VariableType, v.FormKey, strconv.FormatBool(v.Required)}
		},
	})
}
