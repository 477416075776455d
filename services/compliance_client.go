package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backend_fieldservice/models"

	"github.com/sirupsen/logrus"
)

// ComplianceRegistry внешний реестр соответствия BATUTA
type ComplianceRegistry interface {
	Submit(ctx context.Context, report *models.Report) error
}

// ComplianceSubmission тело запроса к реестру
type ComplianceSubmission struct {
	Reference         string    `json:"reference"`
	MissionID         uint      `json:"mission_id"`
	Type              string    `json:"type"`
	Location          string    `json:"location"`
	WorkPerformed     string    `json:"work_performed"`
	CertificateNumber string    `json:"certificate_number,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// ComplianceClient HTTP-клиент реестра соответствия
type ComplianceClient struct {
	BaseURL    string
	HTTPClient *http.Client
	log        *logrus.Logger
}

// NewComplianceClient создает новый клиент реестра
func NewComplianceClient(baseURL string, log *logrus.Logger) *ComplianceClient {
	return &ComplianceClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// Submit отправляет отчет в реестр; без настроенного URL отправка только логируется
func (c *ComplianceClient) Submit(ctx context.Context, report *models.Report) error {
	if c.BaseURL == "" {
		c.log.WithField("reference", report.InterventionReference).Info("Реестр BATUTA не настроен, отправка пропущена")
		return nil
	}

	body, err := json.Marshal(ComplianceSubmission{
		Reference:         report.InterventionReference,
		MissionID:         report.MissionID,
		Type:              report.Type,
		Location:          report.Location,
		WorkPerformed:     report.WorkPerformed,
		CertificateNumber: report.CertificateNumber,
		SubmittedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/reports", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к реестру: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("реестр вернул статус %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
