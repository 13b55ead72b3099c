package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatGeoJSON  Format = "geojson"
)

// ParseFormat accepts a format name in any case; empty selects the table format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatMarkdown, FormatCSV, FormatJSON, FormatGeoJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Align is a column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table is a titled grid of strings
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Aligns  []Align
}

// Render writes t in the given tabular format. JSON formats are not tabular and
// fall back to the plain table.
func Render(w io.Writer, format Format, t Table) error {
	columns := len(t.Headers)
	if columns == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = t.Headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range t.Rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(t.Aligns) && t.Aligns[i] == AlignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	var out string
	switch format {
	case FormatMarkdown:
		if t.Title != "" {
			out = "## " + t.Title + "\n\n"
		}
		out += tw.RenderMarkdown() + "\n"
	case FormatCSV:
		if t.Title != "" {
			out = "# " + t.Title + "\n"
		}
		out += tw.RenderCSV() + "\n"
	default:
		if t.Title != "" {
			out = t.Title + "\n"
		}
		out += tw.Render() + "\n"
	}

	_, err := io.WriteString(w, out+"\n")
	return err
}
