package payroll

import (
	"context"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// RegisterRow is one paycheck line of the payroll register.
type RegisterRow struct {
	RunID             string `csv:"run_id"`
	EmployeeID        string `csv:"employee_id"`
	Status            string `csv:"status"`
	PayDate           string `csv:"pay_date"`
	Gross             string `csv:"gross"`
	PreTaxDeductions  string `csv:"pretax_deductions"`
	EmployeeTaxes     string `csv:"employee_taxes"`
	PostTaxDeductions string `csv:"posttax_deductions"`
	Garnishments      string `csv:"garnishments"`
	Net               string `csv:"net"`
	EmployerTaxes     string `csv:"employer_taxes"`
	Warnings          string `csv:"warnings"`
	Error             string `csv:"error"`
}

// RegisterRows lists every paycheck of the run in run order.
func RegisterRows(run PayrollRun) []*RegisterRow {
	rows := make([]*RegisterRow, 0, len(run.Paychecks))
	payDate := run.Period.PayDate.Format("2006-01-02")
	for _, p := range run.Paychecks {
		codes := make([]string, 0, len(p.Warnings))
		for _, w := range p.Warnings {
			codes = append(codes, w.Code)
		}
		rows = append(rows, &RegisterRow{
			RunID:             run.ID,
			EmployeeID:        p.EmployeeID,
			Status:            string(p.Status),
			PayDate:           payDate,
			Gross:             p.Gross.String(),
			PreTaxDeductions:  p.PreTaxTotal.String(),
			EmployeeTaxes:     p.EmployeeTaxes.String(),
			PostTaxDeductions: p.PostTaxTotal.String(),
			Garnishments:      p.GarnishmentTotal.String(),
			Net:               p.Net.String(),
			EmployerTaxes:     p.EmployerTaxes.String(),
			Warnings:          strings.Join(codes, ";"),
			Error:             p.Error,
		})
	}
	return rows
}

// WriteRegister writes the run's register as CSV.
func (s *Service) WriteRegister(ctx context.Context, tenantID, runID string, w io.Writer) error {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}
	return gocsv.Marshal(RegisterRows(run), w)
}
