package api

import (
	"encoding/json"
	"strconv"
	"strings"

	"backend_fieldservice/models"
	"backend_fieldservice/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// idList принимает массив идентификаторов или строку с сериализованным массивом.
// Строка, которую не удалось разобрать, отбрасывается.
type idList struct {
	ids []uint
	set bool
}

func (l *idList) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = s
	}
	if ids, ok := services.ParseIDList(raw); ok {
		l.ids, l.set = ids, true
	}
	return nil
}

type ReportRequest struct {
	MissionID         uint    `json:"mission_id"`
	Type              *string `json:"type"`
	StartTime         *string `json:"start_time"`
	EndTime           *string `json:"end_time"`
	Location          *string `json:"location"`
	WorkPerformed     *string `json:"work_performed"`
	Observations      *string `json:"observations"`
	Recommendations   *string `json:"recommendations"`
	SelectedEquipment idList  `json:"selected_equipment"`
	SelectedProducts  idList  `json:"selected_products"`
	Status            *string `json:"status"`
	BatutaCompliant   *bool   `json:"batuta_compliant"`
}

// ReportsAPI обработчики отчетов о вмешательствах
type ReportsAPI struct {
	reports *services.ReportService
	uploads *services.UploadService
	pdf     *services.PDFService
	log     *logrus.Logger
}

// NewReportsAPI создает новый экземпляр ReportsAPI
func NewReportsAPI(reports *services.ReportService, uploads *services.UploadService, pdf *services.PDFService, log *logrus.Logger) *ReportsAPI {
	return &ReportsAPI{reports: reports, uploads: uploads, pdf: pdf, log: log}
}

// RegisterReportsRoutes регистрирует маршруты /api/reports
func (api *ReportsAPI) RegisterReportsRoutes(r *gin.RouterGroup, staff gin.HandlerFunc) {
	reports := r.Group("/reports")
	{
		reports.GET("", api.GetReports)
		reports.POST("", staff, api.CreateReport)
		reports.GET("/:id", api.GetReport)
		reports.PUT("/:id", staff, api.UpdateReport)
		reports.DELETE("/:id", staff, api.DeleteReport)
		reports.POST("/:id/send-compliance", staff, api.SendCompliance)
		reports.POST("/:id/certificate", staff, api.GenerateCertificate)
		reports.GET("/:id/pdf", api.ReportPDF)
	}
}

// optionalString возвращает указатель на значение поля формы, если оно передано
func optionalString(c *gin.Context, field string) *string {
	if v, ok := c.GetPostForm(field); ok {
		return &v
	}
	return nil
}

// bindReport читает отчет из JSON или multipart-формы и сохраняет фотографии
func (api *ReportsAPI) bindReport(c *gin.Context) (*ReportRequest, []models.ReportPhoto, bool) {
	var req ReportRequest
	if !isMultipart(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return nil, nil, false
		}
		return &req, nil, true
	}

	if v := c.PostForm("mission_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("mission_id", "must be a number"))
			return nil, nil, false
		}
		req.MissionID = uint(id)
	}
	req.Type = optionalString(c, "type")
	req.StartTime = optionalString(c, "start_time")
	req.EndTime = optionalString(c, "end_time")
	req.Location = optionalString(c, "location")
	req.WorkPerformed = optionalString(c, "work_performed")
	req.Observations = optionalString(c, "observations")
	req.Recommendations = optionalString(c, "recommendations")
	req.Status = optionalString(c, "status")
	if raw, ok := c.GetPostForm("selected_equipment"); ok {
		req.SelectedEquipment.ids, req.SelectedEquipment.set = services.ParseIDList(raw)
	}
	if raw, ok := c.GetPostForm("selected_products"); ok {
		req.SelectedProducts.ids, req.SelectedProducts.set = services.ParseIDList(raw)
	}
	if v, ok := c.GetPostForm("batuta_compliant"); ok {
		compliant, _ := strconv.ParseBool(v)
		req.BatutaCompliant = &compliant
	}

	photos, err := api.uploads.SavePhotos(formFiles(c, "photos"), c.PostFormArray("captions"))
	if err != nil {
		respondError(c, api.log, err)
		return nil, nil, false
	}
	return &req, photos, true
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (api *ReportsAPI) discardPhotos(photos []models.ReportPhoto) {
	attachments := make([]models.Attachment, 0, len(photos))
	for _, p := range photos {
		attachments = append(attachments, models.Attachment{URL: p.URL})
	}
	api.uploads.RemoveAll(attachments)
}

// GetReports возвращает отчеты (?mission_id=)
func (api *ReportsAPI) GetReports(c *gin.Context) {
	f := listFilter(c)
	var missionID uint
	if v := c.Query("mission_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(c, api.log, services.NewValidationError("mission_id", "must be a number"))
			return
		}
		missionID = uint(id)
	}
	items, total, err := api.reports.List(c.Request.Context(), currentUser(c), missionID, f)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondList(c, items, f.Page, f.Limit, total)
}

// GetReport возвращает отчет
func (api *ReportsAPI) GetReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := api.reports.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, report)
}

// CreateReport создает отчет с фотографиями
func (api *ReportsAPI) CreateReport(c *gin.Context) {
	req, photos, ok := api.bindReport(c)
	if !ok {
		return
	}
	in := services.ReportInput{
		MissionID:         req.MissionID,
		Type:              deref(req.Type),
		StartTime:         deref(req.StartTime),
		EndTime:           deref(req.EndTime),
		Location:          deref(req.Location),
		WorkPerformed:     deref(req.WorkPerformed),
		Observations:      deref(req.Observations),
		Recommendations:   deref(req.Recommendations),
		SelectedEquipment: req.SelectedEquipment.ids,
		SelectedProducts:  req.SelectedProducts.ids,
		Status:            models.ReportStatus(deref(req.Status)),
	}
	if req.BatutaCompliant != nil {
		in.BatutaCompliant = *req.BatutaCompliant
	}

	report, err := api.reports.Create(c.Request.Context(), currentUser(c), in, photos)
	if err != nil {
		api.discardPhotos(photos)
		respondError(c, api.log, err)
		return
	}
	respondCreated(c, report)
}

// UpdateReport изменяет отчет; новые фотографии добавляются к существующим
func (api *ReportsAPI) UpdateReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	req, photos, ok := api.bindReport(c)
	if !ok {
		return
	}
	in := services.ReportUpdateInput{
		Type:            req.Type,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Location:        req.Location,
		WorkPerformed:   req.WorkPerformed,
		Observations:    req.Observations,
		Recommendations: req.Recommendations,
		BatutaCompliant: req.BatutaCompliant,
	}
	if req.SelectedEquipment.set {
		in.SelectedEquipment = append([]uint{}, req.SelectedEquipment.ids...)
	}
	if req.SelectedProducts.set {
		in.SelectedProducts = append([]uint{}, req.SelectedProducts.ids...)
	}
	if req.Status != nil {
		status := models.ReportStatus(*req.Status)
		in.Status = &status
	}

	report, err := api.reports.Update(c.Request.Context(), currentUser(c), id, in, photos)
	if err != nil {
		api.discardPhotos(photos)
		respondError(c, api.log, err)
		return
	}
	respondOK(c, report)
}

// DeleteReport удаляет отчет
func (api *ReportsAPI) DeleteReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := api.reports.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, api.log, err)
		return
	}
	respondMessage(c, "Report deleted")
}

// SendCompliance отправляет отчет в реестр BATUTA
func (api *ReportsAPI) SendCompliance(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := api.reports.SendCompliance(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, report)
}

// GenerateCertificate выдает сертификат соответствия
func (api *ReportsAPI) GenerateCertificate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := api.reports.GenerateCertificate(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	respondOK(c, report)
}

// ReportPDF формирует PDF отчета с фотографиями и сохраняет ссылку на него
func (api *ReportsAPI) ReportPDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	report, err := api.reports.Get(ctx, currentUser(c), id)
	if err != nil {
		respondError(c, api.log, err)
		return
	}
	data, err := api.pdf.ReportPDF(report)
	if err != nil {
		respondError(c, api.log, err)
		return
	}

	filename := report.InterventionReference + ".pdf"
	if url, err := api.uploads.SaveGenerated(services.UploadDocuments, filename, data); err != nil {
		api.log.WithError(err).WithField("report_id", report.ID).Warn("⚠️ Не удалось сохранить PDF отчета")
	} else if err := api.reports.SetPdfURL(ctx, report.ID, url); err != nil {
		api.log.WithError(err).WithField("report_id", report.ID).Warn("⚠️ Не удалось сохранить ссылку на PDF")
	}
	sendFile(c, "application/pdf", filename, data)
}
