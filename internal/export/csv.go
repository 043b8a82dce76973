// Package export emits lead subsets as CSV files for spreadsheet handoff.
package export

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-admin/internal/model"
)

// Columns is the fixed CSV column order.
var Columns = []string{"Name", "Email", "Phone", "TaxId", "Product", "Value", "Address"}

// WriteCSV writes leads to w in the fixed column order. Every value is
// double-quoted, with embedded quotes doubled; no other escaping.
func WriteCSV(w io.Writer, leads []model.Lead) error {
	if err := writeRow(w, Columns); err != nil {
		return err
	}
	for _, l := range leads {
		row := []string{
			l.FullName,
			l.Email,
			l.Phone,
			l.TaxID,
			l.Product,
			strconv.FormatFloat(l.TotalValue, 'f', 2, 64),
			l.Address,
		}
		if err := writeRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes leads as CSV to the given path.
func WriteFile(path string, leads []model.Lead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	if err := WriteCSV(f, leads); err != nil {
		return err
	}
	return eris.Wrap(f.Sync(), "export: sync")
}

func writeRow(w io.Writer, values []string) error {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	_, err := io.WriteString(w, strings.Join(quoted, ",")+"\n")
	return eris.Wrap(err, "export: write row")
}
