package secrets

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"credgate/internal/domain"
	"credgate/internal/security"
)

// Store persists credentials in the database. Secret values are encrypted
// before they hit a row and only decrypted when a reader asks for it.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the stored value for key. The second return reports presence;
// a missing key is not an error. With decrypt set, encrypted values are
// decrypted before returning; without it the raw stored text comes back.
func (s *Store) Get(ctx context.Context, key string, decrypt bool) (string, bool, error) {
	var cred domain.Credential
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("secrets: load %s: %w", key, err)
	}

	if !decrypt {
		return cred.Value, true, nil
	}

	plain, _, err := security.DecryptCredential(cred.Value)
	if err != nil {
		return "", false, fmt.Errorf("secrets: decrypt %s: %w", key, err)
	}
	return plain, true, nil
}

// Set upserts one credential. With encrypt set the value is sealed with the
// process encryption key before storage.
func (s *Store) Set(ctx context.Context, key, value string, encrypt bool, category string) error {
	stored := value
	if encrypt {
		sealed, err := security.EncryptCredential(value)
		if err != nil {
			return fmt.Errorf("secrets: encrypt %s: %w", key, err)
		}
		stored = sealed
	}

	cred := domain.Credential{
		Key:       key,
		Value:     stored,
		Encrypted: encrypt,
		Category:  category,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "encrypted", "category", "updated_at"}),
	}).Create(&cred).Error
	if err != nil {
		return fmt.Errorf("secrets: store %s: %w", key, err)
	}
	return nil
}

// Delete removes one credential. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Credential{}).Error
	if err != nil {
		return fmt.Errorf("secrets: delete %s: %w", key, err)
	}
	return nil
}
