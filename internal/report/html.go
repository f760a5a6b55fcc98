package report

import (
	"fmt"
	"html/template"
	"io"
)

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; padding: 20px; }
  h1 { text-align: center; color: #333; }
  .summary { display: flex; justify-content: space-around; margin-bottom: 30px; border: 1px solid #e5e7eb; padding: 15px; border-radius: 8px; background-color: #f9fafb; }
  .summary-item { text-align: center; }
  .label { font-size: 12px; color: #6b7280; text-transform: uppercase; }
  .value { font-size: 20px; font-weight: bold; margin-top: 5px; }
  .income { color: #10b981; }
  .expense { color: #ef4444; }
  table { width: 100%; border-collapse: collapse; font-size: 14px; }
  th, td { border-bottom: 1px solid #e5e7eb; padding: 12px 8px; text-align: left; }
  th { background-color: #f3f4f6; }
  .amount { text-align: right; font-weight: 500; }
  .note { color: #9ca3af; font-size: 12px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="summary">
  <div class="summary-item"><div class="label">Total Income</div><div class="value income">{{.Income}}</div></div>
  <div class="summary-item"><div class="label">Total Expense</div><div class="value expense">{{.Expense}}</div></div>
  <div class="summary-item"><div class="label">Balance</div><div class="value">{{.Balance}}</div></div>
</div>
<table>
<thead><tr><th>Date</th><th>Category</th><th class="amount">Amount</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr>
  <td>{{.Date}}</td>
  <td><div>{{.Category}}</div>{{if .Description}}<div class="note">{{.Description}}</div>{{end}}</td>
  <td class="amount {{if .Income}}income{{else}}expense{{end}}">{{.Amount}}</td>
</tr>
{{- end}}
</tbody>
</table>
<p class="note">Generated {{.GeneratedAt.Format "2006-01-02 15:04"}}</p>
</body>
</html>
`))

// WriteHTML renders a printable page. Descriptions are escaped.
func WriteHTML(w io.Writer, doc Document) error {
	if err := htmlReport.Execute(w, doc); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// Write dispatches to the writer for f.
func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case XLSX:
		return WriteXLSX(w, doc)
	case HTML:
		return WriteHTML(w, doc)
	case CSV:
		return WriteCSV(w, doc)
	}
	return fmt.Errorf("unsupported export format %q", f)
}
