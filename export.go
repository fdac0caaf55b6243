package admingrid

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ExportConfig selects the grid's toolbar buttons.
type ExportConfig struct {
	CSV              bool `yaml:"csv" json:"csv"`
	Excel            bool `yaml:"excel" json:"excel"`
	PDF              bool `yaml:"pdf" json:"pdf"`
	Print            bool `yaml:"print" json:"print"`
	ColumnVisibility bool `yaml:"column_visibility" json:"column_visibility"`
	SearchBuilder    bool `yaml:"search_builder" json:"search_builder"`
}

// ExportButtons lists the enabled export formats in toolbar order.
func (c ExportConfig) ExportButtons() []string {
	var out []string
	for _, b := range []struct {
		on   bool
		name string
	}{{c.CSV, "csv"}, {c.Excel, "excel"}, {c.PDF, "pdf"}, {c.Print, "print"}} {
		if b.on {
			out = append(out, b.name)
		}
	}
	return out
}

// WriteCSV writes the listed columns of rows in export mode, headed by the
// column labels.
func WriteCSV(w io.Writer, registry *Registry, table *ColumnTable, rows []*Row) error {
	listed := table.Listed()
	cw := csv.NewWriter(w)

	header := make([]string, len(listed))
	for i, c := range listed {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(listed))
	for _, row := range rows {
		cells, err := registry.RenderRow(table, row, ModeExport)
		if err != nil {
			return fmt.Errorf("export row %s: %w", row.ID.Key, err)
		}
		for i, cell := range cells {
			record[i] = CellText(cell)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CellText flattens an export-mode cell to a single string.
func CellText(v interface{}) string {
	switch x := v.(type) {
	case []string:
		return joinPlain(stringsToAny(x))
	case []interface{}:
		return joinPlain(x)
	}
	return plain(v)
}

func stringsToAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
