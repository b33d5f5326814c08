package archive

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"rawjobs-crawler/internal/schema"
)

func writeArchiveForExport(t *testing.T, jobs []schema.JobRecord) string {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)
	_, err = w.WriteJobs(jobs)
	require.NoError(t, err)
	return filepath.Join(dir, JobsFile)
}

func readCSV(t *testing.T, path string) ([]string, [][]string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	return rows[0], rows[1:]
}

func TestExportCSVFlattensWithDottedColumns(t *testing.T) {
	t.Parallel()
	job := validJob("a")
	job.JobCardRaw.TitleRaw = schema.String("Data Engineer")
	jsonlPath := writeArchiveForExport(t, []schema.JobRecord{job})

	csvPath := filepath.Join(t.TempDir(), "jobs.csv")
	require.NoError(t, ExportCSV(jsonlPath, csvPath, nil))

	header, rows := readCSV(t, csvPath)
	require.Len(t, rows, 1)

	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	require.Contains(t, col, "job_identity.job_url")
	require.Contains(t, col, "job_card_raw.title_raw")
	require.Equal(t, "https://example.com/jobs/view/a", rows[0][col["job_identity.job_url"]])
	require.Equal(t, "Data Engineer", rows[0][col["job_card_raw.title_raw"]])
	// Null pointer fields become empty cells, not the string "null".
	require.Equal(t, "", rows[0][col["job_card_raw.company_raw"]])
}

func TestExportCSVDropsListColumnsWithOneWarningEach(t *testing.T) {
	t.Parallel()
	// Both records carry the list-valued status history; the column is
	// dropped once, not once per record.
	jobs := []schema.JobRecord{validJob("a"), validJob("b")}
	jsonlPath := writeArchiveForExport(t, jobs)

	core, logs := observer.New(zap.WarnLevel)
	csvPath := filepath.Join(t.TempDir(), "jobs.csv")
	require.NoError(t, ExportCSV(jsonlPath, csvPath, zap.New(core)))

	header, rows := readCSV(t, csvPath)
	require.Len(t, rows, 2)
	require.NotContains(t, header, "quality_tracking.status_code_history")

	warned := map[string]int{}
	for _, entry := range logs.All() {
		require.Equal(t, "dropping list-valued column from CSV export", entry.Message)
		warned[entry.ContextMap()["column"].(string)]++
	}
	require.Equal(t, 1, warned["quality_tracking.status_code_history"])
	for col, n := range warned {
		require.Equalf(t, 1, n, "column %s warned %d times", col, n)
	}
}

func TestExportCSVRejectsMalformedArchive(t *testing.T) {
	t.Parallel()
	jsonlPath := filepath.Join(t.TempDir(), "jobs.jsonl")
	require.NoError(t, os.WriteFile(jsonlPath, []byte("{not json}\n"), 0o644))

	err := ExportCSV(jsonlPath, filepath.Join(t.TempDir(), "jobs.csv"), nil)
	require.Error(t, err)
	var serr *SerializationError
	require.ErrorAs(t, err, &serr)
}
