// Package excel loads subject cohorts from spreadsheet and CSV files.
package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gomatch/domain/cohort"
	"gomatch/domain/core"
	"gomatch/internal"
	"gomatch/ports"

	"github.com/xuri/excelize/v2"
)

// DataReader reads a cohort table from an Excel or CSV file.
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	schema   ports.SubjectSchema
	logger   *internal.Logger
}

var _ ports.SubjectSourcePort = (*DataReader)(nil)

// NewDataReader creates a reader for the given file. The extension picks
// the format, anything that is not .csv is treated as a workbook.
func NewDataReader(filePath string, schema ports.SubjectSchema, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{filePath: filePath, fileType: fileType, schema: schema, logger: logger}
}

// LoadCohort reads every subject row and returns a validated cohort
func (r *DataReader) LoadCohort(ctx context.Context) (*cohort.Cohort, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s file must have a header row and at least one data row",
			strings.ToUpper(r.fileType))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.buildCohort(rows)
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	r.logger.Debug("read %d rows from %s", len(rows), r.filePath)
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.logger.Debug("read %d rows from %s", len(rows), r.filePath)
	return rows, nil
}

// buildCohort maps the schema columns onto header positions and parses
// every data row into a subject. A blank or unparsable cell rejects the
// whole load, partial cohorts silently bias the match.
func (r *DataReader) buildCohort(rows [][]string) (*cohort.Cohort, error) {
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		index[strings.TrimSpace(h)] = i
	}

	required := append([]string{r.schema.IDColumn, r.schema.TreatmentColumn, r.schema.OutcomeColumn},
		r.schema.CovariateCols...)
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("column %q not found in %s", col, r.filePath)
		}
	}
	timeIdx := -1
	if r.schema.TimeColumn != "" {
		idx, ok := index[r.schema.TimeColumn]
		if !ok {
			return nil, fmt.Errorf("column %q not found in %s", r.schema.TimeColumn, r.filePath)
		}
		timeIdx = idx
	}

	subjects := make([]cohort.Subject, 0, len(rows)-1)
	for n, row := range rows[1:] {
		id := cellAt(row, index[r.schema.IDColumn])
		if id == "" {
			return nil, fmt.Errorf("row %d: empty %s column", n+2, r.schema.IDColumn)
		}
		sid, err := core.ParseSubjectID(id)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}

		treated, err := parseTreatment(cellAt(row, index[r.schema.TreatmentColumn]))
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", n+2, id, err)
		}
		outcome, err := parseCell(row, index[r.schema.OutcomeColumn], sid, r.schema.OutcomeColumn)
		if err != nil {
			return nil, err
		}

		covs := make([]float64, len(r.schema.CovariateCols))
		for k, col := range r.schema.CovariateCols {
			covs[k], err = parseCell(row, index[col], sid, col)
			if err != nil {
				return nil, err
			}
		}

		s := cohort.Subject{ID: sid, Treated: treated, Covariates: covs, Outcome: outcome}
		if timeIdx >= 0 {
			s.EventTime, err = parseCell(row, timeIdx, sid, r.schema.TimeColumn)
			if err != nil {
				return nil, err
			}
		}
		subjects = append(subjects, s)
	}

	r.logger.Info("loaded %d subjects from %s", len(subjects), r.filePath)
	return cohort.New(subjects, r.schema.CovariateKeys())
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseCell(row []string, idx int, id core.SubjectID, field string) (float64, error) {
	cell := cellAt(row, idx)
	if cell == "" {
		return 0, core.NewMissingValueError(id, field)
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("subject %s: cannot parse %s value %q", id, field, cell)
	}
	return v, nil
}

func parseTreatment(cell string) (bool, error) {
	switch strings.ToLower(cell) {
	case "1", "t", "true", "yes", "treated":
		return true, nil
	case "0", "f", "false", "no", "control":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse treatment flag %q", cell)
}
