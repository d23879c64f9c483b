package history

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pursuit-cli/internal/model"
)

// ExportXLSX writes a run history (plus a totals row) to an XLSX workbook at
// path. The sheet is named after the job kind.
func ExportXLSX(path string, kind model.JobKind, entries []model.JobRunEntry) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(string(kind))
	if err != nil {
		return eris.Wrap(err, "history: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"run_id", "initiator", "timestamp", "duration_ms", "tokens_in", "tokens_out", "cost_usd", "status"} {
		header.AddCell().SetString(col)
	}

	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().SetString(e.ID)
		row.AddCell().SetString(e.Initiator)
		row.AddCell().SetString(e.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		row.AddCell().SetInt64(e.DurationMS)
		row.AddCell().SetInt(e.TokensIn)
		row.AddCell().SetInt(e.TokensOut)
		row.AddCell().SetFloat(e.CostUSD)
		row.AddCell().SetString(string(e.Status))
	}

	totals := Reduce(entries)
	sheet.AddRow() // spacer
	totalRow := sheet.AddRow()
	totalRow.AddCell().SetString("totals")
	totalRow.AddCell().SetInt(totals.Runs)
	totalRow.AddCell().SetString("")
	totalRow.AddCell().SetInt64(totals.DurationMS)
	totalRow.AddCell().SetInt(totals.TokensIn)
	totalRow.AddCell().SetInt(totals.TokensOut)
	totalRow.AddCell().SetFloat(totals.CostUSD)

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "history: save %s", path)
	}
	return nil
}
