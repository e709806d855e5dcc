package paystub

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"paycore/internal/domain/money"
	"paycore/internal/domain/payroll"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
)

const (
	labelWidth  = 110.0
	amountWidth = 40.0
	rowHeight   = 6.0
)

// Render draws an itemized paystub for a committed paycheck.
func Render(run payroll.PayrollRun, p payroll.Paycheck) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetTitle(fmt.Sprintf("Paystub %s %s", p.EmployeeID, run.Period.PayDate.Format("2006-01-02")), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Earnings Statement")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, rowHeight, fmt.Sprintf("Employee: %s", p.EmployeeID))
	pdf.Ln(rowHeight)
	pdf.Cell(0, rowHeight, fmt.Sprintf("Pay period: %s to %s", run.Period.Start.Format("2006-01-02"), run.Period.End.Format("2006-01-02")))
	pdf.Ln(rowHeight)
	pdf.Cell(0, rowHeight, fmt.Sprintf("Pay date: %s    Run: %s    Status: %s", run.Period.PayDate.Format("2006-01-02"), run.ID, p.Status))
	pdf.Ln(rowHeight + 4)

	section(pdf, "Earnings", "Current")
	for _, line := range p.Earnings {
		label := string(line.Type)
		if !line.Hours.IsZero() {
			label = fmt.Sprintf("%s  %s h @ %s", label, line.Hours.StringFixed(2), line.Rate.StringFixed(4))
		}
		if line.Description != "" {
			label += "  " + line.Description
		}
		row(pdf, label, line.Amount)
	}
	total(pdf, "Gross pay", p.Gross)

	section(pdf, "Taxes withheld", "Current")
	for _, line := range p.TaxLines {
		if line.Party != taxrules.PartyEmployee {
			continue
		}
		row(pdf, taxLabel(line), line.Amount)
	}
	total(pdf, "Total taxes", p.EmployeeTaxes)

	if len(p.Deductions) > 0 {
		section(pdf, "Deductions", "Current")
		for _, d := range p.Deductions {
			row(pdf, fmt.Sprintf("%s (%s)", d.Code, d.Timing), d.Amount)
		}
		total(pdf, "Total deductions", p.PreTaxTotal+p.PostTaxTotal)
	}

	if len(p.Garnishments) > 0 {
		section(pdf, "Garnishments", "Current")
		for _, g := range p.Garnishments {
			label := string(g.Kind)
			if g.CaseRef != "" {
				label += "  case " + g.CaseRef
			}
			row(pdf, label, g.Amount)
		}
		total(pdf, "Total garnishments", p.GarnishmentTotal)
	}

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(labelWidth, 8, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, 8, p.Net.String(), "T", 1, "R", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Year to date", "Amount")
	for _, item := range ytdRows(p.YTDAfter) {
		row(pdf, item.label, item.amount)
	}

	if pdf.Err() {
		return nil, pdf.Error()
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title, column string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(labelWidth, 7, title, "B", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, 7, column, "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
}

func row(pdf *gofpdf.Fpdf, label string, amount money.Money) {
	pdf.CellFormat(labelWidth, rowHeight, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight, amount.String(), "", 1, "R", false, 0, "")
}

func total(pdf *gofpdf.Fpdf, label string, amount money.Money) {
	pdf.SetFont("Helvetica", "B", 10)
	row(pdf, label, amount)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(3)
}

func taxLabel(line taxrules.Line) string {
	name := strings.ReplaceAll(line.Tax, "_", " ")
	return fmt.Sprintf("%s %s", line.Jurisdiction, name)
}

type ytdRow struct {
	label  string
	amount money.Money
}

func ytdRows(y wagebase.YTD) []ytdRow {
	rows := []ytdRow{
		{"Gross", y.Gross},
		{"Federal income tax", y.FederalIncomeTax},
		{"Social security tax", y.SocialSecurityTax},
		{"Medicare tax", y.MedicareTax + y.AdditionalMedicareTax},
	}
	rows = append(rows, keyed("state income tax", y.StateIncomeTax)...)
	rows = append(rows, keyed("local tax", y.LocalTax)...)
	rows = append(rows, keyed("deferral", y.Deferrals)...)
	return append(rows, ytdRow{"Net pay", y.NetPay})
}

func keyed(suffix string, values map[string]money.Money) []ytdRow {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ytdRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, ytdRow{k + " " + suffix, values[k]})
	}
	return out
}
