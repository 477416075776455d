package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
)

// PDFService формирует PDF-документы: предложения, счета и отчеты
type PDFService struct {
	uploads  config.UploadsConfig
	business config.BusinessConfig
	log      *logrus.Logger
}

// NewPDFService создает новый экземпляр PDFService
func NewPDFService(uploads config.UploadsConfig, business config.BusinessConfig, log *logrus.Logger) *PDFService {
	return &PDFService{uploads: uploads, business: business, log: log}
}

type pdfDoc struct {
	*gofpdf.Fpdf
	tr func(string) string
}

func (s *PDFService) newDocument(title, reference string) *pdfDoc {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title+" "+reference, true)
	pdf.SetAutoPageBreak(true, 15)
	doc := &pdfDoc{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s - %d", reference, pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	if s.business.CompanyDisplayName != "" {
		pdf.CellFormat(0, 8, doc.tr(s.business.CompanyDisplayName), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 10, doc.tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, doc.tr("Reference: "+reference), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	return doc
}

func (d *pdfDoc) field(label, value string) {
	if value == "" {
		return
	}
	d.SetFont("Arial", "B", 10)
	d.CellFormat(45, 6, d.tr(label), "", 0, "L", false, 0, "")
	d.SetFont("Arial", "", 10)
	d.MultiCell(0, 6, d.tr(value), "", "L", false)
}

func (d *pdfDoc) section(title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	d.Ln(3)
	d.SetFont("Arial", "B", 12)
	d.CellFormat(0, 7, d.tr(title), "", 1, "L", false, 0, "")
	d.SetFont("Arial", "", 10)
	d.MultiCell(0, 5, d.tr(body), "", "L", false)
}

// table выводит таблицу позиций; widths в миллиметрах
func (d *pdfDoc) table(headers []string, widths []float64, rows [][]string) {
	d.Ln(3)
	d.SetFont("Arial", "B", 10)
	d.SetFillColor(230, 230, 230)
	for i, h := range headers {
		d.CellFormat(widths[i], 7, d.tr(h), "1", 0, "C", true, 0, "")
	}
	d.Ln(-1)
	d.SetFont("Arial", "", 9)
	for _, row := range rows {
		for i, v := range row {
			align := "R"
			if i == 0 {
				align = "L"
			}
			d.CellFormat(widths[i], 6, d.tr(v), "1", 0, align, false, 0, "")
		}
		d.Ln(-1)
	}
}

func (d *pdfDoc) total(label, value string) {
	d.SetFont("Arial", "B", 10)
	d.CellFormat(150, 6, d.tr(label), "", 0, "R", false, 0, "")
	d.CellFormat(0, 6, d.tr(value), "", 1, "R", false, 0, "")
}

func (d *pdfDoc) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006")
}

// QuotePDF формирует PDF коммерческого предложения
func (s *PDFService) QuotePDF(q *models.Quote) ([]byte, error) {
	doc := s.newDocument("Quote", q.Reference)
	if q.Client != nil {
		doc.field("Client:", q.Client.FullName())
		if q.Client.Company != nil {
			doc.field("Company:", q.Client.Company.Name)
		}
	}
	if q.Technician != nil {
		doc.field("Technician:", q.Technician.FullName())
	}
	doc.field("Title:", q.Title)
	doc.field("Status:", string(q.Status))
	doc.field("Valid until:", formatDate(q.ValidUntil))

	rows := make([][]string, 0, len(q.Items))
	for _, item := range q.Items {
		rows = append(rows, []string{
			item.Description,
			fmt.Sprintf("%d", item.Quantity),
			item.UnitPrice.StringFixed(2),
			item.LineTotal().StringFixed(2),
		})
	}
	doc.table([]string{"Description", "Qty", "Unit price", "Total"}, []float64{100, 20, 35, 35}, rows)

	doc.Ln(2)
	doc.total("Subtotal:", q.Subtotal.StringFixed(2)+" "+s.business.Currency)
	doc.total(fmt.Sprintf("Tax (%s%%):", q.TaxRate.String()), q.TaxAmount.StringFixed(2)+" "+s.business.Currency)
	doc.total("Total:", q.Total.StringFixed(2)+" "+s.business.Currency)

	doc.section("Notes", q.Notes)
	doc.section("Terms", q.Terms)
	return doc.bytes()
}

// InvoicePDF формирует PDF счета
func (s *PDFService) InvoicePDF(inv *models.Invoice) ([]byte, error) {
	doc := s.newDocument("Invoice", inv.InvoiceNumber)
	if inv.Client != nil {
		doc.field("Client:", inv.Client.FullName())
	}
	if inv.Company != nil {
		doc.field("Company:", inv.Company.Name)
		doc.field("Tax ID:", inv.Company.TaxID)
	}
	doc.field("Issue date:", inv.IssueDate.Format("02/01/2006"))
	doc.field("Due date:", inv.DueDate.Format("02/01/2006"))
	doc.field("Status:", string(inv.Status))

	rows := make([][]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		rows = append(rows, []string{
			item.Description,
			item.Quantity.String(),
			item.UnitPrice.StringFixed(2),
			item.Total.StringFixed(2),
		})
	}
	doc.table([]string{"Description", "Qty", "Unit price", "Total"}, []float64{100, 20, 35, 35}, rows)

	doc.Ln(2)
	currency := inv.Currency
	if currency == "" {
		currency = s.business.Currency
	}
	doc.total("Total:", inv.TotalAmount.StringFixed(2)+" "+currency)
	doc.total("Paid:", inv.PaidAmount.StringFixed(2)+" "+currency)
	doc.total("Remaining:", inv.GetRemainingAmount().StringFixed(2)+" "+currency)

	doc.section("Notes", inv.Notes)
	return doc.bytes()
}

// ReportPDF формирует PDF отчета о вмешательстве с фотографиями.
// Отсутствующие файлы фотографий пропускаются с предупреждением.
func (s *PDFService) ReportPDF(r *models.Report) ([]byte, error) {
	doc := s.newDocument("Intervention report", r.InterventionReference)
	if r.Mission != nil {
		doc.field("Mission:", r.Mission.MissionNumber)
		if r.Mission.Client != nil {
			doc.field("Client:", r.Mission.Client.FullName())
		}
	}
	if r.Technician != nil {
		doc.field("Technician:", r.Technician.FullName())
	}
	doc.field("Type:", r.Type)
	doc.field("Date:", r.CreatedAt.Format("02/01/2006"))
	if r.StartTime != "" || r.EndTime != "" {
		doc.field("Time:", r.StartTime+" - "+r.EndTime)
	}
	doc.field("Location:", r.Location)
	if r.BatutaCompliant {
		doc.field("Compliance:", "BATUTA compliant")
	}
	doc.field("Certificate:", r.CertificateNumber)

	doc.section("Work performed", r.WorkPerformed)
	doc.section("Observations", r.Observations)
	doc.section("Recommendations", r.Recommendations)

	if len(r.Photos) > 0 {
		doc.Ln(3)
		doc.SetFont("Arial", "B", 12)
		doc.CellFormat(0, 7, "Photos", "", 1, "L", false, 0, "")
		for _, photo := range r.Photos {
			s.embedPhoto(doc, r.InterventionReference, photo)
		}
	}
	return doc.bytes()
}

func (s *PDFService) embedPhoto(doc *pdfDoc, reference string, photo models.ReportPhoto) {
	path := s.localPath(photo.URL)
	imageType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if imageType == "jpeg" {
		imageType = "jpg"
	}
	if imageType != "jpg" && imageType != "png" && imageType != "gif" {
		s.log.WithFields(logrus.Fields{"report": reference, "photo": photo.URL}).Warn("⚠️ Неподдерживаемый формат фотографии, пропускаем")
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.log.WithFields(logrus.Fields{"report": reference, "photo": photo.URL}).Warn("⚠️ Файл фотографии не найден, пропускаем")
		return
	}

	if doc.GetY() > 200 {
		doc.AddPage()
	}
	doc.ImageOptions(path, 15, doc.GetY(), 80, 0, true, gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}, 0, "")
	if doc.Err() {
		s.log.WithError(doc.Error()).WithField("photo", photo.URL).Warn("⚠️ Не удалось встроить фотографию")
		doc.ClearError()
		return
	}
	if photo.Caption != "" {
		doc.SetFont("Arial", "I", 9)
		doc.MultiCell(0, 5, doc.tr(photo.Caption), "", "L", false)
	}
	doc.Ln(2)
}

// localPath переводит публичный URL загрузки в путь на диске
func (s *PDFService) localPath(url string) string {
	rel := strings.TrimPrefix(url, s.uploads.PublicPath)
	rel = strings.TrimPrefix(rel, "/")
	return filepath.Join(s.uploads.Dir, filepath.FromSlash(rel))
}
