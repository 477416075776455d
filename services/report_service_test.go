package services

import (
	"context"
	"errors"
	"testing"

	"backend_fieldservice/models"
	"backend_fieldservice/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []uint
		ok   bool
	}{
		{"пустая строка", "", nil, true},
		{"JSON-массив", "[1, 2, 3]", []uint{1, 2, 3}, true},
		{"через запятую", " 4, 5 ", []uint{4, 5}, true},
		{"битый JSON", "[1, 2", nil, false},
		{"нечисловое значение", "1,abc", nil, false},
		{"ноль недопустим", "0,1", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIDList(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReportService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	otherTech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionInProgress)

	t.Run("техник миссии создает отчет", func(t *testing.T) {
		report, err := env.reports.Create(ctx, tech, ReportInput{
			MissionID:         mission.ID,
			Type:              models.CategoryInstallation,
			StartTime:         "09:00",
			EndTime:           "11:30",
			WorkPerformed:     "Pose de 4 caméras",
			SelectedEquipment: []uint{1, 2},
		}, []models.ReportPhoto{{URL: "/uploads/reports/1.jpg", Caption: "Façade"}})
		require.NoError(t, err)

		assert.Equal(t, models.ReportDraft, report.Status)
		assert.Equal(t, tech.ID, report.TechnicianID)
		assert.Equal(t, mission.Address, report.Location, "адрес миссии по умолчанию")
		assert.Regexp(t, `^RPT-\d{14}-[0-9a-f]{6}$`, report.InterventionReference)
		assert.Len(t, report.Photos, 1)
		assert.Equal(t, []uint{1, 2}, report.SelectedEquipment)

		var notified int64
		env.db.Model(&models.Notification{}).Where("recipient_id = ? AND type = ?", client.ID, models.NotificationReportCreated).Count(&notified)
		assert.Equal(t, int64(1), notified)
	})

	t.Run("чужой техник не создает отчет", func(t *testing.T) {
		_, err := env.reports.Create(ctx, otherTech, ReportInput{MissionID: mission.ID, Type: models.CategoryRepair}, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("неверный формат времени", func(t *testing.T) {
		_, err := env.reports.Create(ctx, tech, ReportInput{MissionID: mission.ID, Type: models.CategoryRepair, StartTime: "25:99"}, nil)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "start_time", verr.Fields[0].Field)
	})

	t.Run("слишком много фотографий", func(t *testing.T) {
		photos := make([]models.ReportPhoto, MaxReportPhotos+1)
		_, err := env.reports.Create(ctx, tech, ReportInput{MissionID: mission.ID, Type: models.CategoryRepair}, photos)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("клиент видит отчеты своей миссии", func(t *testing.T) {
		_, total, err := env.reports.List(ctx, client, mission.ID, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		_, total, err = env.reports.List(ctx, otherTech, 0, ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestReportService_Compliance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutils.CreateUser(t, env.db, models.RoleAdmin, true)
	tech := testutils.CreateUser(t, env.db, models.RoleTechnician, true)
	client := testutils.CreateUser(t, env.db, models.RoleClient, true)
	_, mission := env.acceptedQuoteMission(t, admin, client, tech, models.MissionInProgress)

	report, err := env.reports.Create(ctx, tech, ReportInput{
		MissionID: mission.ID,
		Type:      models.CategoryMaintenance,
		Status:    models.ReportCompleted,
	}, nil)
	require.NoError(t, err)

	t.Run("отчет без соответствия не отправляется", func(t *testing.T) {
		_, err := env.reports.SendCompliance(ctx, tech, report.ID)
		assert.ErrorIs(t, err, ErrComplianceRequired)
		_, err = env.reports.GenerateCertificate(ctx, tech, report.ID)
		assert.ErrorIs(t, err, ErrComplianceRequired)
		assert.Empty(t, env.registry.submitted)
	})

	compliant := true
	_, err = env.reports.Update(ctx, tech, report.ID, ReportUpdateInput{BatutaCompliant: &compliant}, nil)
	require.NoError(t, err)

	t.Run("сертификат выдается один раз", func(t *testing.T) {
		first, err := env.reports.GenerateCertificate(ctx, tech, report.ID)
		require.NoError(t, err)
		assert.Regexp(t, `^CERT-\d{4}-\d{6}$`, first.CertificateNumber)

		second, err := env.reports.GenerateCertificate(ctx, admin, report.ID)
		require.NoError(t, err)
		assert.Equal(t, first.CertificateNumber, second.CertificateNumber)
	})

	t.Run("ошибка реестра не меняет статус", func(t *testing.T) {
		env.registry.err = errors.New("registry unavailable")
		_, err := env.reports.SendCompliance(ctx, tech, report.ID)
		assert.Error(t, err)
		env.registry.err = nil

		reloaded, err := env.reports.Get(ctx, admin, report.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportCompleted, reloaded.Status)
	})

	t.Run("отправка в реестр", func(t *testing.T) {
		sent, err := env.reports.SendCompliance(ctx, tech, report.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReportSent, sent.Status)
		assert.NotNil(t, sent.ComplianceSentAt)
		assert.Equal(t, []string{report.InterventionReference}, env.registry.submitted)
		assert.True(t, env.alerter.has("Report sent"))
	})

	t.Run("повторная отправка запрещена", func(t *testing.T) {
		_, err := env.reports.SendCompliance(ctx, tech, report.ID)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Len(t, env.registry.submitted, 1)
	})

	t.Run("черновик не отправляется", func(t *testing.T) {
		draft, err := env.reports.Create(ctx, tech, ReportInput{MissionID: mission.ID, Type: models.CategoryRepair, BatutaCompliant: true}, nil)
		require.NoError(t, err)
		_, err = env.reports.SendCompliance(ctx, tech, draft.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("клиент не редактирует отчет", func(t *testing.T) {
		notes := "x"
		_, err := env.reports.Update(ctx, client, report.ID, ReportUpdateInput{Observations: &notes}, nil)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}
