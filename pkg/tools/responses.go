package tools

import (
	"fmt"
	"strings"
)

// formatValue renders a result cell for text output. Fractional floats are
// shown with up to three decimals, trailing zeros trimmed.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		if v != float64(int64(v)) {
			s := fmt.Sprintf("%.3f", v)
			s = strings.TrimRight(s, "0")
			return strings.TrimRight(s, ".")
		}
		return fmt.Sprintf("%d", int64(v))
	case float32:
		return formatValue(float64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// renderTable renders rows as a padded text table with two spaces between
// columns.
func renderTable(columns []string, rows []map[string]any) string {
	widths := make(map[string]int, len(columns))
	for _, col := range columns {
		widths[col] = len(col)
	}
	for _, row := range rows {
		for _, col := range columns {
			if w := len(formatValue(row[col])); w > widths[col] {
				widths[col] = w
			}
		}
	}

	var b strings.Builder
	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = pad(col, widths[col])
	}
	b.WriteString(strings.Join(headers, "  "))
	b.WriteString("\n")

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = pad(formatValue(row[col]), widths[col])
		}
		b.WriteString(strings.Join(cells, "  "))
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// truncate shortens a value to max characters with an ellipsis marker.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
