package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the shape every command yields, framed with a trailing
// newline by the server. Exactly one of the three outcomes is
// populated: a plain success message, a result set, or an error.
type Response struct {
	Status       string           `json:"status"`
	Message      string           `json:"message,omitempty"`
	AffectedRows int              `json:"affected_rows,omitempty"`
	Results      []map[string]any `json:"results,omitempty"`
	Count        int              `json:"count,omitempty"`
}

// OK builds a plain success response.
func OK(message string, affectedRows int) *Response {
	return &Response{Status: "success", Message: message, AffectedRows: affectedRows}
}

// Rows builds a success response carrying a result set.
func Rows(results []map[string]any) *Response {
	return &Response{Status: "success", Results: results, Count: len(results)}
}

// Err builds an error response. No partial result is ever attached:
// an error response carries exactly one JSON error object.
func Err(err error) *Response {
	return &Response{Status: "error", Message: err.Error()}
}

// Encode renders r per format ("json", the default, or "table") as a
// newline-terminated byte slice ready to write to the connection.
func Encode(r *Response, format string) ([]byte, error) {
	if format == "table" {
		return []byte(renderTable(r) + "\n"), nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return append(b, '\n'), nil
}

// renderTable is the text-table renderer: a header row of the first
// result's keys, then one row per result, column widths sized to their
// widest value. The keys are taken by ranging over a map, so the column
// order is not fixed and can differ between calls. Errors and plain-message
// successes render as a single line, matching the original's
// json_formatter.c having both a structured and a plain-text mode.
func renderTable(r *Response) string {
	if r.Status == "error" {
		return "ERROR: " + r.Message
	}
	if len(r.Results) == 0 {
		if r.Message != "" {
			return r.Message
		}
		return fmt.Sprintf("OK (%d affected)", r.AffectedRows)
	}

	var cols []string
	for k := range r.Results[0] {
		cols = append(cols, k)
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	cellStrings := make([][]string, len(r.Results))
	for ri, row := range r.Results {
		cellStrings[ri] = make([]string, len(cols))
		for ci, c := range cols {
			s := fmt.Sprintf("%v", row[c])
			cellStrings[ri][ci] = s
			if len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			fmt.Fprintf(&b, "%-*s", widths[i]+2, cell)
		}
		b.WriteByte('\n')
	}
	writeRow(cols)
	for i := range cols {
		b.WriteString(strings.Repeat("-", widths[i]+1))
		b.WriteByte(' ')
	}
	b.WriteByte('\n')
	for _, cells := range cellStrings {
		writeRow(cells)
	}
	return strings.TrimRight(b.String(), "\n")
}
