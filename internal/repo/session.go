package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicwatch/civicwatch/internal/models"
)

func (r *GormRepo) CreateRefreshSession(ctx context.Context, userID uuid.UUID, secretHash string) (*models.RefreshSession, error) {
	session := models.RefreshSession{
		UserID:     userID,
		SecretHash: secretHash,
	}
	if err := r.DB.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GormRepo) FindRefreshSessionByID(ctx context.Context, id uuid.UUID) (*models.RefreshSession, error) {
	var session models.RefreshSession
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// SetSecretHash overwrites the session's secret unconditionally. Only
// the login path uses it, on a row no other request can see yet.
func (r *GormRepo) SetSecretHash(ctx context.Context, id uuid.UUID, secretHash string) error {
	result := r.DB.WithContext(ctx).Model(&models.RefreshSession{}).
		Where("id = ?", id).
		Update("secret_hash", secretHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateSecretHash replaces the secret hash only if the stored value
// is still the one the caller read. Two concurrent refreshes both
// pass the bcrypt compare, but only one wins this swap; the loser
// gets ErrStaleSecret and the refresh fails closed.
func (r *GormRepo) RotateSecretHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) error {
	result := r.DB.WithContext(ctx).Model(&models.RefreshSession{}).
		Where("id = ? AND secret_hash = ?", id, oldHash).
		Update("secret_hash", newHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleSecret
	}
	return nil
}

// DeleteRefreshSession is idempotent; deleting an absent row is fine.
func (r *GormRepo) DeleteRefreshSession(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.RefreshSession{}).Error
}

func (r *GormRepo) DeleteAllRefreshSessionsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshSession{})
	return result.RowsAffected, result.Error
}

func (r *GormRepo) CountRefreshSessionsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.RefreshSession{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
