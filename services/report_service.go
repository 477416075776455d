package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MaxReportPhotos максимальное число фотографий за одну загрузку
const MaxReportPhotos = 10

// ReportInput данные отчета
type ReportInput struct {
	MissionID         uint
	Type              string
	StartTime         string
	EndTime           string
	Location          string
	WorkPerformed     string
	Observations      string
	Recommendations   string
	SelectedEquipment []uint
	SelectedProducts  []uint
	Status            models.ReportStatus
	BatutaCompliant   bool
}

// ReportUpdateInput изменяемые поля отчета
type ReportUpdateInput struct {
	Type              *string
	StartTime         *string
	EndTime           *string
	Location          *string
	WorkPerformed     *string
	Observations      *string
	Recommendations   *string
	SelectedEquipment []uint
	SelectedProducts  []uint
	Status            *models.ReportStatus
	BatutaCompliant   *bool
}

// ReportService управляет отчетами о вмешательствах
type ReportService struct {
	db       *gorm.DB
	registry ComplianceRegistry
	effects  *SideEffects
	log      *logrus.Logger
	now      func() time.Time
}

// NewReportService создает новый экземпляр ReportService
func NewReportService(db *gorm.DB, registry ComplianceRegistry, effects *SideEffects, log *logrus.Logger) *ReportService {
	return &ReportService{db: db, registry: registry, effects: effects, log: log, now: time.Now}
}

// ParseIDList разбирает список идентификаторов, пришедший строкой:
// JSON-массив ("[1,2]") или значения через запятую ("1,2").
// Некорректный ввод отбрасывается целиком (ok=false).
func ParseIDList(raw string) (ids []uint, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, false
		}
		return ids, true
	}
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil || v == 0 {
			return nil, false
		}
		ids = append(ids, uint(v))
	}
	return ids, true
}

func validHHMM(v string) bool {
	if v == "" {
		return true
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

func validateReportFields(typ, start, end string) error {
	verr := &ValidationError{}
	if !models.ValidServiceCategory(typ) {
		verr.Add("type", "must be one of installation, maintenance, repair, diagnostic, emergency")
	}
	if !validHHMM(start) {
		verr.Add("start_time", "must be HH:MM")
	}
	if !validHHMM(end) {
		verr.Add("end_time", "must be HH:MM")
	}
	return verr.OrNil()
}

func canViewReport(actor *models.User, r *models.Report) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTechnician:
		return r.TechnicianID == actor.ID || (r.Mission != nil && r.Mission.TechnicianID == actor.ID)
	case models.RoleClient:
		return r.Mission != nil && r.Mission.ClientID == actor.ID
	}
	return false
}

func canEditReport(actor *models.User, r *models.Report) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTechnician() && canViewReport(actor, r)
}

// Create создает отчет по миссии (администратор или техник миссии)
func (s *ReportService) Create(ctx context.Context, actor *models.User, in ReportInput, photos []models.ReportPhoto) (*models.Report, error) {
	if !actor.IsAdmin() && !actor.IsTechnician() {
		return nil, ErrForbidden
	}
	if in.MissionID == 0 {
		return nil, NewValidationError("mission_id", "is required")
	}
	if err := validateReportFields(in.Type, in.StartTime, in.EndTime); err != nil {
		return nil, err
	}
	if len(photos) > MaxReportPhotos {
		return nil, NewValidationError("photos", fmt.Sprintf("at most %d photos are allowed", MaxReportPhotos))
	}
	status := in.Status
	if status == "" {
		status = models.ReportDraft
	}
	if err := models.ReportDraft.CanTransitionTo(status); err != nil {
		return nil, err
	}

	var mission models.Mission
	if err := s.db.WithContext(ctx).First(&mission, in.MissionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("mission_id", "mission not found")
		}
		return nil, err
	}
	if actor.IsTechnician() && mission.TechnicianID != actor.ID {
		return nil, ErrForbidden
	}

	now := s.now()
	report := &models.Report{
		MissionID:         mission.ID,
		TechnicianID:      mission.TechnicianID,
		Type:              in.Type,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		Location:          in.Location,
		WorkPerformed:     in.WorkPerformed,
		Observations:      in.Observations,
		Recommendations:   in.Recommendations,
		SelectedEquipment: in.SelectedEquipment,
		SelectedProducts:  in.SelectedProducts,
		Status:            status,
		Photos:            photos,
		BatutaCompliant:   in.BatutaCompliant,
	}
	if report.Location == "" {
		report.Location = mission.Address
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return createWithReference(tx, report, func(int) {
			report.ID = 0
			report.InterventionReference = models.ReportReference(now)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"report_id": report.ID, "reference": report.InterventionReference, "mission_id": mission.ID}).
		Info("✅ Отчет создан")

	msg := fmt.Sprintf("Intervention report %s has been created for mission %s", report.InterventionReference, mission.MissionNumber)
	entity := models.RelatedEntity{ID: report.ID, Type: models.EntityReport}
	drafts := []NotificationDraft{{
		RecipientID: mission.ClientID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationReportCreated,
		Message:     msg,
		Entity:      entity,
	}}
	drafts = append(drafts, s.effects.AdminDrafts(ctx, uintPtr(actor.ID), models.NotificationReportCreated, msg, entity)...)
	s.effects.Notify(ctx, drafts)

	return s.load(ctx, report.ID)
}

func (s *ReportService) load(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).
		Preload("Mission").Preload("Mission.Client").Preload("Technician").
		First(&report, id).Error; err != nil {
		return nil, notFoundOr(err)
	}
	return &report, nil
}

// Get возвращает отчет; доступ наследуется от миссии
func (s *ReportService) Get(ctx context.Context, actor *models.User, id uint) (*models.Report, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canViewReport(actor, report) {
		return nil, ErrForbidden
	}
	return report, nil
}

// List возвращает отчеты с учетом роли
func (s *ReportService) List(ctx context.Context, actor *models.User, missionID uint, f ListFilter) ([]models.Report, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Report{}).
		Joins("JOIN missions ON missions.id = reports.mission_id")

	switch actor.Role {
	case models.RoleClient:
		query = query.Where("missions.client_id = ?", actor.ID)
	case models.RoleTechnician:
		query = query.Where("reports.technician_id = ? OR missions.technician_id = ?", actor.ID, actor.ID)
	}
	if missionID != 0 {
		query = query.Where("reports.mission_id = ?", missionID)
	}
	if f.Status != "" {
		query = query.Where("reports.status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		query = query.Where("LOWER(reports.intervention_reference) LIKE ? OR LOWER(reports.location) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reports []models.Report
	err := query.Preload("Mission").Preload("Technician").
		Order("reports.created_at DESC, reports.id DESC").
		Scopes(f.paginate).Find(&reports).Error
	return reports, total, err
}

// Update изменяет отчет; новые фотографии добавляются к существующим
func (s *ReportService) Update(ctx context.Context, actor *models.User, id uint, in ReportUpdateInput, newPhotos []models.ReportPhoto) (*models.Report, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditReport(actor, report) {
		return nil, ErrForbidden
	}
	if len(newPhotos) > MaxReportPhotos {
		return nil, NewValidationError("photos", fmt.Sprintf("at most %d photos are allowed", MaxReportPhotos))
	}
	if in.Status != nil {
		if err := report.Status.CanTransitionTo(*in.Status); err != nil {
			return nil, err
		}
	}

	typ, start, end := report.Type, report.StartTime, report.EndTime
	if in.Type != nil {
		typ = *in.Type
	}
	if in.StartTime != nil {
		start = *in.StartTime
	}
	if in.EndTime != nil {
		end = *in.EndTime
	}
	if err := validateReportFields(typ, start, end); err != nil {
		return nil, err
	}
	report.Type, report.StartTime, report.EndTime = typ, start, end

	if in.Location != nil {
		report.Location = *in.Location
	}
	if in.WorkPerformed != nil {
		report.WorkPerformed = *in.WorkPerformed
	}
	if in.Observations != nil {
		report.Observations = *in.Observations
	}
	if in.Recommendations != nil {
		report.Recommendations = *in.Recommendations
	}
	if in.SelectedEquipment != nil {
		report.SelectedEquipment = in.SelectedEquipment
	}
	if in.SelectedProducts != nil {
		report.SelectedProducts = in.SelectedProducts
	}
	if in.BatutaCompliant != nil {
		report.BatutaCompliant = *in.BatutaCompliant
	}
	if in.Status != nil {
		report.Status = *in.Status
	}
	report.Photos = append(report.Photos, newPhotos...)

	if err := s.db.WithContext(ctx).Omit("Mission", "Technician").Save(report).Error; err != nil {
		return nil, err
	}
	return report, nil
}

// SendCompliance отправляет отчет в реестр BATUTA и переводит его в sent
func (s *ReportService) SendCompliance(ctx context.Context, actor *models.User, id uint) (*models.Report, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditReport(actor, report) {
		return nil, ErrForbidden
	}
	if !report.BatutaCompliant {
		return nil, ErrComplianceRequired
	}
	if report.Status == models.ReportSent {
		return nil, fmt.Errorf("%w: report %s was already sent", ErrConflict, report.InterventionReference)
	}
	if err := report.Status.CanTransitionTo(models.ReportSent); err != nil {
		return nil, err
	}

	if err := s.registry.Submit(ctx, report); err != nil {
		return nil, fmt.Errorf("не удалось отправить отчет в реестр: %w", err)
	}

	now := s.now()
	report.ComplianceSentAt = &now
	report.SentAt = &now
	report.Status = models.ReportSent
	if err := s.db.WithContext(ctx).Omit("Mission", "Technician").Save(report).Error; err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Intervention report %s has been sent to the compliance registry", report.InterventionReference)
	entity := models.RelatedEntity{ID: report.ID, Type: models.EntityReport}
	var drafts []NotificationDraft
	if report.Mission != nil {
		drafts = append(drafts, NotificationDraft{
			RecipientID: report.Mission.ClientID,
			SenderID:    uintPtr(actor.ID),
			Type:        models.NotificationReportSent,
			Message:     msg,
			Entity:      entity,
		})
	}
	drafts = append(drafts, NotificationDraft{
		RecipientID: report.TechnicianID,
		SenderID:    uintPtr(actor.ID),
		Type:        models.NotificationReportSent,
		Message:     msg,
		Entity:      entity,
	})
	s.effects.Notify(ctx, drafts)
	s.effects.Alert("Report sent", msg)
	return report, nil
}

// GenerateCertificate выдает номер сертификата соответствия (повторный вызов возвращает тот же)
func (s *ReportService) GenerateCertificate(ctx context.Context, actor *models.User, id uint) (*models.Report, error) {
	report, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEditReport(actor, report) {
		return nil, ErrForbidden
	}
	if !report.BatutaCompliant {
		return nil, ErrComplianceRequired
	}
	if report.CertificateNumber != "" {
		return report, nil
	}

	report.CertificateNumber = models.CertificateNumber(s.now().Year(), report.ID)
	if err := s.db.WithContext(ctx).Model(report).Update("certificate_number", report.CertificateNumber).Error; err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"report_id": report.ID, "certificate": report.CertificateNumber}).Info("✅ Сертификат выдан")
	return report, nil
}

// SetPdfURL сохраняет путь к последнему сгенерированному PDF
func (s *ReportService) SetPdfURL(ctx context.Context, id uint, url string) error {
	return s.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", id).Update("pdf_url", url).Error
}

// Delete удаляет отчет (только администратор)
func (s *ReportService) Delete(ctx context.Context, actor *models.User, id uint) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	res := s.db.WithContext(ctx).Delete(&models.Report{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
