package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON  = "json"
	outputYAML  = "yaml"
	outputTable = "table"
)

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case outputJSON, outputYAML, outputTable:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use json, yaml or table)", format)
	}
}

// writeRecords renders records in the selected format.
func writeRecords(w io.Writer, format string, records []record.Record) error {
	switch format {
	case outputYAML:
		rows, err := decodeAll(records)
		if err != nil {
			return err
		}
		return writeYAML(w, rows)
	case outputTable:
		return writeRecordTable(w, records)
	default:
		if records == nil {
			records = []record.Record{}
		}
		return writeJSON(w, records)
	}
}

// writeProperties renders an ordered set of key/value pairs.
func writeProperties(w io.Writer, format string, keys []string, values map[string]any) error {
	switch format {
	case outputYAML:
		return writeYAML(w, values)
	case outputTable:
		table := tablewriter.NewWriter(w)
		table.Header("Property", "Value")
		for _, key := range keys {
			_ = table.Append(key, fmt.Sprint(values[key]))
		}
		return table.Render()
	default:
		return writeJSON(w, values)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

func decodeAll(records []record.Record) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(records))
	for i, r := range records {
		var row map[string]any
		if err := r.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeRecordTable prints one row per record with the union of all field
// names as sorted columns.
func writeRecordTable(w io.Writer, records []record.Record) error {
	rows := make([]map[string]json.RawMessage, 0, len(records))
	seen := make(map[string]bool)
	var columns []string
	for i, r := range records {
		fields, err := r.Fields()
		if err != nil {
			return fmt.Errorf("decode record %d: %w", i, err)
		}
		for name := range fields {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
		rows = append(rows, fields)
	}
	sort.Strings(columns)

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}

	table := tablewriter.NewWriter(w)
	table.Header(header...)
	for _, fields := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = cell(fields[c])
		}
		_ = table.Append(cells)
	}
	return table.Render()
}

func cell(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
