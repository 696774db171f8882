package pod

import (
	"fmt"
	"io"
	"strings"
)

// FormatFunc colors or otherwise decorates a cell at render time.
type FormatFunc func(value string) string

type ColumnSpec struct {
	Header     string
	BlankValue string // shown for empty cells, "-" by default
	FormatFunc FormatFunc
	MinWidth   int
	AlignRight bool
}

// Table renders fixed-width text tables; widths ignore ANSI escapes.
type Table struct {
	columns []ColumnSpec
	rows    [][]string
	widths  []int
}

func NewTable(cols ...ColumnSpec) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i, col := range cols {
		t.widths[i] = max(col.MinWidth, visibleLength(col.Header))
		if t.columns[i].BlankValue == "" {
			t.columns[i].BlankValue = "-"
		}
	}
	return t
}

// AddRow appends a row; missing or empty cells get the column's BlankValue.
func (t *Table) AddRow(data ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(data) && data[i] != "" {
			row[i] = data[i]
		} else {
			row[i] = t.columns[i].BlankValue
		}
		t.widths[i] = max(t.widths[i], visibleLength(row[i]))
	}
	t.rows = append(t.rows, row)
}

// AddKV is AddRow for two-column key/value tables.
func (t *Table) AddKV(key string, value any) {
	t.AddRow(key, fmt.Sprint(value))
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Render(w io.Writer) error {
	headers := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = t.pad(i, col.Header)
		rule[i] = strings.Repeat("-", t.widths[i])
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, " "), " ")); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Join(rule, " ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, val := range row {
			if f := t.columns[i].FormatFunc; f != nil {
				val = f(val)
			}
			cells[i] = t.pad(i, val)
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " ")); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) String() string {
	var sb strings.Builder
	t.Render(&sb)
	return sb.String()
}

func (t *Table) pad(col int, s string) string {
	n := t.widths[col] - visibleLength(s)
	if n <= 0 {
		return s
	}
	if t.columns[col].AlignRight {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// visibleLength counts runes outside ANSI SGR escape sequences.
func visibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			length++
		}
	}
	return length
}

func ColorRed(s string) string    { return "\033[31m" + s + "\033[0m" }
func ColorGreen(s string) string  { return "\033[32m" + s + "\033[0m" }
func ColorYellow(s string) string { return "\033[33m" + s + "\033[0m" }
func ColorGray(s string) string   { return "\033[90m" + s + "\033[0m" }
