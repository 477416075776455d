package services

import (
	"fmt"

	"gorm.io/gorm"
)

// createWithReference вставляет запись, пересчитывая номер при конфликте уникальности.
// Каждая попытка изолирована точкой сохранения, чтобы ошибка не прерывала транзакцию.
func createWithReference(tx *gorm.DB, value interface{}, assign func(attempt int)) error {
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		assign(attempt)
		savepoint := fmt.Sprintf("reference_attempt_%d", attempt)
		if spErr := tx.SavePoint(savepoint).Error; spErr != nil {
			return spErr
		}
		err = tx.Create(value).Error
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return rbErr
		}
	}
	return fmt.Errorf("%w: could not allocate a unique reference: %v", ErrConflict, err)
}
