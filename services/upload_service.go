package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"backend_fieldservice/config"
	"backend_fieldservice/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Каталоги загрузок по типам сущностей
const (
	UploadRequests     = "requests"
	UploadReports      = "reports"
	UploadMessages     = "messages"
	UploadServiceTypes = "service-types"
	UploadDocuments    = "documents"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// UploadService сохраняет загруженные файлы в локальный каталог,
// который раздается как статика
type UploadService struct {
	cfg config.UploadsConfig
	log *logrus.Logger
}

// NewUploadService создает новый экземпляр UploadService
func NewUploadService(cfg config.UploadsConfig, log *logrus.Logger) *UploadService {
	return &UploadService{cfg: cfg, log: log}
}

// MaxPhotos ограничение на число фотографий в одной загрузке
func (us *UploadService) MaxPhotos() int {
	if us.cfg.MaxPhotos <= 0 {
		return MaxReportPhotos
	}
	return us.cfg.MaxPhotos
}

// Save сохраняет файл под сгенерированным именем и возвращает вложение с публичным URL
func (us *UploadService) Save(category string, header *multipart.FileHeader) (*models.Attachment, error) {
	if us.cfg.MaxUploadSize > 0 && header.Size > us.cfg.MaxUploadSize {
		return nil, NewValidationError("file", fmt.Sprintf("%s exceeds the maximum upload size", header.Filename))
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dir := filepath.Join(us.cfg.Dir, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог загрузок: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	name := uuid.New().String() + ext
	target := filepath.Join(dir, name)

	dst, err := os.Create(target)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := dst.Close(); err != nil {
			us.log.WithError(err).Warn("Failed to close destination file")
		}
	}()

	written, err := io.Copy(dst, src)
	if err != nil {
		if removeErr := os.Remove(target); removeErr != nil {
			us.log.WithError(removeErr).Warn("Failed to remove partial file after error")
		}
		return nil, fmt.Errorf("не удалось сохранить файл: %w", err)
	}

	us.log.WithFields(logrus.Fields{"file": target, "size": written}).Debug("Файл сохранен")
	return &models.Attachment{
		URL:          path.Join(us.cfg.PublicPath, category, name),
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         written,
	}, nil
}

// SaveAll сохраняет набор файлов; при ошибке уже сохраненные файлы удаляются
func (us *UploadService) SaveAll(category string, headers []*multipart.FileHeader) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(headers))
	for _, h := range headers {
		a, err := us.Save(category, h)
		if err != nil {
			us.RemoveAll(attachments)
			return nil, err
		}
		attachments = append(attachments, *a)
	}
	return attachments, nil
}

// SavePhotos сохраняет изображения отчета, проверяя формат и количество
func (us *UploadService) SavePhotos(headers []*multipart.FileHeader, captions []string) ([]models.ReportPhoto, error) {
	if len(headers) > us.MaxPhotos() {
		return nil, NewValidationError("photos", fmt.Sprintf("at most %d photos are allowed", us.MaxPhotos()))
	}
	for _, h := range headers {
		if !imageExtensions[strings.ToLower(filepath.Ext(h.Filename))] {
			return nil, NewValidationError("photos", fmt.Sprintf("%s is not an image", h.Filename))
		}
	}

	attachments, err := us.SaveAll(UploadReports, headers)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	photos := make([]models.ReportPhoto, 0, len(attachments))
	for i, a := range attachments {
		p := models.ReportPhoto{URL: a.URL, Timestamp: now}
		if i < len(captions) {
			p.Caption = captions[i]
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// RemoveAll удаляет ранее сохраненные файлы (best-effort)
func (us *UploadService) RemoveAll(attachments []models.Attachment) {
	for _, a := range attachments {
		rel := strings.TrimPrefix(strings.TrimPrefix(a.URL, us.cfg.PublicPath), "/")
		if err := os.Remove(filepath.Join(us.cfg.Dir, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
			us.log.WithError(err).WithField("url", a.URL).Warn("Failed to remove uploaded file")
		}
	}
}

// SaveGenerated сохраняет сгенерированный документ под заданным именем и возвращает публичный URL
func (us *UploadService) SaveGenerated(category, name string, data []byte) (string, error) {
	dir := filepath.Join(us.cfg.Dir, category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать каталог загрузок: %w", err)
	}
	name = filepath.Base(name)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("не удалось сохранить документ: %w", err)
	}
	return path.Join(us.cfg.PublicPath, category, name), nil
}
