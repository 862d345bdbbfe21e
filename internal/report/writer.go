package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Supported export formats and partition columns
const (
	FormatJSON    = "json"
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"

	PartitionDate = "date"
	PartitionHour = "hour"
)

const sheetName = "metrics"

// Writer exports summaries into a partitioned directory tree,
// dir/date=YYYY-MM-DD[/hour=HH]/metrics-<run>.<format>
type Writer struct {
	dir        string
	partitions []string
	formats    []string
	now        func() time.Time
}

// NewWriter validates the partition columns and formats
func NewWriter(dir string, partitions, formats []string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	for _, p := range partitions {
		if p != PartitionDate && p != PartitionHour {
			return nil, fmt.Errorf("unsupported report partition %q", p)
		}
	}
	if len(formats) == 0 {
		formats = []string{FormatJSON}
	}
	for _, f := range formats {
		if f != FormatJSON && f != FormatXLSX && f != FormatParquet {
			return nil, fmt.Errorf("unsupported report format %q", f)
		}
	}

	return &Writer{dir: dir, partitions: partitions, formats: formats, now: time.Now}, nil
}

// Write exports s in every configured format and returns the written paths
func (w *Writer) Write(s Summary) ([]string, error) {
	dir := w.partitionDir(w.now())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	flat := s.Flatten()
	var written []string
	for _, format := range w.formats {
		path := filepath.Join(dir, fmt.Sprintf("metrics-%s.%s", s.RunID, format))

		var err error
		switch format {
		case FormatJSON:
			err = writeJSON(path, flat)
		case FormatXLSX:
			err = writeXLSX(path, flat)
		case FormatParquet:
			err = writeParquet(path, flat)
		}
		if err != nil {
			return written, err
		}

		logrus.Infof("Metrics report written to %s", path)
		written = append(written, path)
	}

	return written, nil
}

func (w *Writer) partitionDir(t time.Time) string {
	parts := []string{w.dir}
	for _, p := range w.partitions {
		switch p {
		case PartitionDate:
			parts = append(parts, "date="+t.Format("2006-01-02"))
		case PartitionHour:
			parts = append(parts, "hour="+t.Format("15"))
		}
	}
	return filepath.Join(parts...)
}

func writeJSON(path string, flat map[string]any) error {
	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics report: %w", err)
	}
	return nil
}

// writeXLSX writes one header row of sorted column names and one value row
func writeXLSX(path string, flat map[string]any) error {
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName(file.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, key := range keys {
		header, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		value, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheetName, header, key); err != nil {
			return fmt.Errorf("failed to write header %s: %w", key, err)
		}
		if err := file.SetCellStyle(sheetName, header, header, headerStyle); err != nil {
			return fmt.Errorf("failed to style header %s: %w", key, err)
		}
		if err := file.SetCellValue(sheetName, value, flat[key]); err != nil {
			return fmt.Errorf("failed to write value %s: %w", key, err)
		}
	}

	if err := file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save metrics workbook: %w", err)
	}
	return nil
}

// writeParquet writes the flattened summary as a single row with one column
// per key. Group fields are sorted by name, so leaf i is field i.
func writeParquet(path string, flat map[string]any) error {
	group := make(parquet.Group, len(flat))
	for key, value := range flat {
		switch value.(type) {
		case string:
			group[key] = parquet.String()
		case int, int64:
			group[key] = parquet.Int(64)
		case float64:
			group[key] = parquet.Leaf(parquet.DoubleType)
		default:
			return fmt.Errorf("unsupported metric type %T for %s", value, key)
		}
	}
	schema := parquet.NewSchema(sheetName, group)

	row := make(parquet.Row, 0, len(flat))
	for i, field := range schema.Fields() {
		var v parquet.Value
		switch x := flat[field.Name()].(type) {
		case string:
			v = parquet.ByteArrayValue([]byte(x))
		case int:
			v = parquet.Int64Value(int64(x))
		case int64:
			v = parquet.Int64Value(x)
		case float64:
			v = parquet.DoubleValue(x)
		}
		row = append(row, v.Level(0, 0, i))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics dataset: %w", err)
	}
	defer file.Close()

	w := parquet.NewWriter(file, schema)
	if _, err := w.WriteRows([]parquet.Row{row}); err != nil {
		return fmt.Errorf("failed to write metrics row: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish metrics dataset: %w", err)
	}
	return file.Close()
}
