package archive

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// ExportCSV flattens a JSONL archive into a CSV file. Nested objects become
// dotted column names (job_identity.job_url); list-valued fields cannot be
// flattened and are dropped, with exactly one warning per dropped column for
// the whole export. Null values become empty cells. The CSV is a lossy
// convenience view, never the canonical archive.
func ExportCSV(jsonlPath, csvPath string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	in, err := os.Open(jsonlPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", jsonlPath, err)
	}
	defer in.Close()

	var (
		rows    []map[string]string
		columns []string
		seen    = map[string]bool{}
		dropped = map[string]bool{}
	)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return &SerializationError{RecordID: strconv.Itoa(line), Err: err}
		}
		row := map[string]string{}
		flatten("", record, row, dropped)
		for col := range row {
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read archive %s: %w", jsonlPath, err)
	}

	for col := range dropped {
		logger.Warn("dropping list-valued column from CSV export", zap.String("column", col))
	}

	out, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", csvPath, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			cells[i] = row[col]
		}
		if err := w.Write(cells); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// flatten walks a decoded JSON value. Objects recurse with dotted prefixes,
// scalars land in row, and arrays are recorded in dropped instead of being
// emitted.
func flatten(prefix string, value any, row map[string]string, dropped map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			name := key
			if prefix != "" {
				name = prefix + "." + key
			}
			flatten(name, child, row, dropped)
		}
	case []any:
		dropped[prefix] = true
	case nil:
		row[prefix] = ""
	case string:
		row[prefix] = v
	case bool:
		row[prefix] = strconv.FormatBool(v)
	case float64:
		row[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		row[prefix] = fmt.Sprint(v)
	}
}
