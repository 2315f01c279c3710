package staff

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

// Table is a list of flat records with a stable column order: the order in
// which keys first appear across the records.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t Table) Len() int {
	return len(t.Rows)
}

func newTable(list gjson.Result) Table {
	var (
		t     Table
		index = map[string]int{}
		recs  []map[string]string
	)
	list.ForEach(func(_, rec gjson.Result) bool {
		if !rec.IsObject() {
			return true
		}
		row := map[string]string{}
		rec.ForEach(func(key, value gjson.Result) bool {
			name := key.String()
			if _, ok := index[name]; !ok {
				index[name] = len(t.Columns)
				t.Columns = append(t.Columns, name)
			}
			row[name] = cell(value)
			return true
		})
		recs = append(recs, row)
		return true
	})

	t.Rows = make([][]string, len(recs))
	for i, rec := range recs {
		row := make([]string, len(t.Columns))
		for name, value := range rec {
			row[index[name]] = value
		}
		t.Rows[i] = row
	}
	return t
}

// cell renders a value for a spreadsheet. Nested values keep their JSON.
func cell(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.JSON:
		return v.Raw
	default:
		return v.String()
	}
}

// WriteCSV writes t with a header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("staff: writing csv: %w", err)
	}
	return nil
}

// ExportFileName names an export after the filtered date, or today's date
// when the filter has none.
func ExportFileName(f Filter, now time.Time) string {
	date := f.Tanggal
	if date == "" {
		date = now.Format(time.DateOnly)
	}
	return "Attendance_" + date + ".csv"
}
