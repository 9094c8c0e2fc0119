package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"
)

// NotAvailable is printed for empty cells.
const NotAvailable = "N/A"

// ErrUnknownOutputFormat is returned for an unsupported --output value.
var ErrUnknownOutputFormat = errors.New("unknown output format")

// tableView is a rendered listing: a header plus one row per item.
type tableView struct {
	header []string
	rows   [][]string
}

// render writes value in the requested format. Table output uses view.
func render(w io.Writer, format string, value any, view tableView) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(toYAMLValue(value)); err != nil {
			return err
		}
		return encoder.Close()
	case OutputFormatTable, "":
		return renderTable(w, view)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOutputFormat, format)
	}
}

func renderTable(w io.Writer, view tableView) error {
	if len(view.rows) == 0 {
		_, err := io.WriteString(w, "No results found\n")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header(toAny(view.header)...)
	for _, row := range view.rows {
		if err := table.Append(toAny(row)...); err != nil {
			return err
		}
	}
	return table.Render()
}

// toYAMLValue round-trips through JSON so YAML keys match the API field names.
func toYAMLValue(value any) any {
	data, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return value
	}
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if v == "" {
			v = NotAvailable
		}
		out[i] = v
	}
	return out
}
