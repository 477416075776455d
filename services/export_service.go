package services

import (
	"bytes"
	"fmt"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// ExportService выгружает списки в Excel
type ExportService struct {
	log *logrus.Logger
}

// NewExportService создает новый экземпляр ExportService
func NewExportService(log *logrus.Logger) *ExportService {
	return &ExportService{log: log}
}

// writeSheet записывает заголовки и строки, добавляет автофильтр и возвращает XLSX
func (s *ExportService) writeSheet(sheetName string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close Excel file")
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6E6"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, style); err != nil {
		return nil, err
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	endCell, _ := excelize.CoordinatesToCellName(len(headers), len(rows)+1)
	if err := f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("не удалось сформировать XLSX: %w", err)
	}
	return buf.Bytes(), nil
}

func userName(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.FullName()
}

// Missions выгружает миссии
func (s *ExportService) Missions(missions []models.Mission) ([]byte, error) {
	headers := []string{"Mission number", "Title", "Status", "Priority", "Client", "Technician", "Scheduled date", "Address", "Completed at"}
	rows := make([][]interface{}, 0, len(missions))
	for _, m := range missions {
		completed := ""
		if m.CompletedAt != nil {
			completed = m.CompletedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []interface{}{
			m.MissionNumber,
			m.Title,
			string(m.Status),
			m.Priority,
			userName(m.Client),
			userName(m.Technician),
			m.ScheduledDate.Format("2006-01-02 15:04"),
			m.Address,
			completed,
		})
	}
	return s.writeSheet("Missions", headers, rows)
}

// Invoices выгружает счета; суммы пишутся числами
func (s *ExportService) Invoices(invoices []models.Invoice) ([]byte, error) {
	headers := []string{"Invoice number", "Client", "Company", "Issue date", "Due date", "Total", "Paid", "Currency", "Status", "Payment status"}
	rows := make([][]interface{}, 0, len(invoices))
	for _, inv := range invoices {
		company := ""
		if inv.Company != nil {
			company = inv.Company.Name
		}
		total, _ := inv.TotalAmount.Float64()
		paid, _ := inv.PaidAmount.Float64()
		rows = append(rows, []interface{}{
			inv.InvoiceNumber,
			userName(inv.Client),
			company,
			inv.IssueDate.Format("2006-01-02"),
			inv.DueDate.Format("2006-01-02"),
			total,
			paid,
			inv.Currency,
			string(inv.Status),
			string(inv.PaymentStatus),
		})
	}
	return s.writeSheet("Invoices", headers, rows)
}
