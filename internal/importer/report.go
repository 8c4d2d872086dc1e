package importer

// report.go renders a job's retained error records as a downloadable CSV.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// reportHeader is the fixed column order of the error report.
var reportHeader = []string{"rowNumber", "name", "email", "phone", "company", "error"}

// DefaultReportFilename is used when the source filename yields no usable base.
const DefaultReportFilename = "import_errors.csv"

var nonWordRun = regexp.MustCompile(`\W+`)

// BuildErrorReport renders the job's error records in stored order, one row
// per retained record. Payload fields missing from a record (fatal row-0
// entries have no payload at all) render as blank columns. Quoting follows
// standard CSV rules via encoding/csv.
func BuildErrorReport(job *Job) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write(reportHeader)
	for _, e := range job.Errors {
		w.Write([]string{
			strconv.Itoa(e.Row),
			e.Payload["name"],
			e.Payload["email"],
			e.Payload["phone"],
			e.Payload["company"],
			e.Message,
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write error report: %w", err)
	}
	return buf.Bytes(), nil
}

// ReportFilename derives the download name from the job's source filename:
// extension stripped, non-word runs collapsed to underscores, "_errors.csv"
// appended. A degenerate base name falls back to DefaultReportFilename.
func ReportFilename(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(nonWordRun.ReplaceAllString(base, "_"), "_")
	if base == "" {
		return DefaultReportFilename
	}
	return base + "_errors.csv"
}
