package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"time"

	"github.com/Sternrassler/mattermost-client/pkg/pagination"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"
)

func (a *app) outputFormat() (string, error) {
	switch format := a.v.GetString("output"); format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
	}
}

// column is one table column read from an entity field.
type column struct {
	header string
	field  string
	format func(any) string
}

func col(header, field string) column {
	return column{header: header, field: field}
}

func (c column) value(e pagination.Entity) string {
	v := e[c.field]
	if c.format != nil {
		return c.format(v)
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// formatMillis renders a Mattermost millisecond timestamp.
func formatMillis(v any) string {
	ms, ok := v.(float64)
	if !ok || ms == 0 {
		return ""
	}
	return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339)
}

// formatDeleted renders a delete_at timestamp as a yes/no flag.
func formatDeleted(v any) string {
	if ms, ok := v.(float64); ok && ms > 0 {
		return "yes"
	}
	return "no"
}

func truncate(n int) func(any) string {
	return func(v any) string {
		s := formatValue(v)
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n-3]) + "..."
	}
}

// printer writes entities in the selected output format. JSON is written
// as one object per line while iterating; table and YAML are written by
// flush.
type printer struct {
	w       io.Writer
	format  string
	columns []column
	table   *tablewriter.Table
	items   []pagination.Entity
	enc     *json.Encoder
	count   int
}

func newPrinter(w io.Writer, format string, columns []column) *printer {
	p := &printer{w: w, format: format, columns: columns}

	switch format {
	case OutputFormatJSON:
		p.enc = json.NewEncoder(w)
	case OutputFormatTable:
		headers := make([]any, len(columns))
		for i, c := range columns {
			headers[i] = c.header
		}
		p.table = tablewriter.NewWriter(w)
		p.table.Header(headers...)
	}

	return p
}

func (p *printer) add(e pagination.Entity) error {
	p.count++

	switch p.format {
	case OutputFormatJSON:
		return p.enc.Encode(e)
	case OutputFormatYAML:
		p.items = append(p.items, e)
		return nil
	default:
		row := make([]any, len(p.columns))
		for i, c := range p.columns {
			row[i] = c.value(e)
		}
		return p.table.Append(row...)
	}
}

func (p *printer) flush() error {
	switch p.format {
	case OutputFormatJSON:
		return nil
	case OutputFormatYAML:
		if p.items == nil {
			p.items = []pagination.Entity{}
		}
		return writeYAML(p.w, p.items)
	default:
		if p.count == 0 {
			_, err := fmt.Fprintln(p.w, "No results found")
			return err
		}
		return p.table.Render()
	}
}

// printSeq drains seq into a printer, stopping after limit entities when
// limit > 0. Entities already printed are flushed even when seq fails.
func printSeq(w io.Writer, format string, columns []column, seq iter.Seq2[pagination.Entity, error], limit int) error {
	p := newPrinter(w, format, columns)

	var iterErr error
	for e, err := range seq {
		if err != nil {
			iterErr = err
			break
		}
		if err := p.add(e); err != nil {
			return err
		}
		if limit > 0 && p.count >= limit {
			break
		}
	}

	if err := p.flush(); err != nil {
		return err
	}
	return iterErr
}

func printEntities(w io.Writer, format string, columns []column, entities []pagination.Entity) error {
	p := newPrinter(w, format, columns)
	for _, e := range entities {
		if err := p.add(e); err != nil {
			return err
		}
	}
	return p.flush()
}

// field is one row of a key/value result.
type field struct {
	Name  string
	Key   string
	Value any
}

// printFields writes a single result as a two-column table or as one
// JSON/YAML object keyed by Key.
func printFields(w io.Writer, format string, fields []field) error {
	switch format {
	case OutputFormatJSON, OutputFormatYAML:
		obj := make(map[string]any, len(fields))
		for _, f := range fields {
			obj[f.Key] = f.Value
		}
		if format == OutputFormatYAML {
			return writeYAML(w, obj)
		}
		return jsonEncoder(w).Encode(obj)
	default:
		table := tablewriter.NewWriter(w)
		table.Header("Field", "Value")
		for _, f := range fields {
			if err := table.Append(f.Name, fmt.Sprint(f.Value)); err != nil {
				return err
			}
		}
		return table.Render()
	}
}

// jsonEncoder writes single documents indented; streams use one line per entity.
func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
