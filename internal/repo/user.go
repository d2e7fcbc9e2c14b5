package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicwatch/civicwatch/internal/models"
)

// FindUserByUsername does a case-sensitive exact match.
func (r *GormRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user. A username or email collision comes
// back as ErrDuplicate, distinct from any other storage failure. The
// existence check catches the common case; the unique indexes close
// the race between check and insert.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	var existing models.User
	err := r.DB.WithContext(ctx).
		Where("username = ? OR email = ?", u.Username, u.Email).
		First(&existing).Error
	if err == nil {
		return ErrDuplicate
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *GormRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

type UserUpdate struct {
	Role       *string
	TrustScore *int
	City       *string
	State      *string
}

func (r *GormRepo) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*models.User, error) {
	fields := map[string]any{}
	if upd.Role != nil {
		fields["role"] = *upd.Role
	}
	if upd.TrustScore != nil {
		fields["trust_score"] = *upd.TrustScore
	}
	if upd.City != nil {
		fields["city"] = *upd.City
	}
	if upd.State != nil {
		fields["state"] = *upd.State
	}

	if len(fields) > 0 {
		result := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.FindUserByID(ctx, id)
}

type UserStats struct {
	TotalUsers   int64 `json:"total_users"`
	Responders   int64 `json:"responders"`
	Admins       int64 `json:"admins"`
	RegularUsers int64 `json:"regular_users"`
	ShadowBanned int64 `json:"shadow_banned"`
}

func (r *GormRepo) UserStats(ctx context.Context) (*UserStats, error) {
	var stats UserStats
	db := r.DB.WithContext(ctx).Model(&models.User{})

	if err := db.Session(&gorm.Session{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where("role = ?", models.RoleResponder).Count(&stats.Responders).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where("role = ?", models.RoleAdmin).Count(&stats.Admins).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Where("trust_score < 0").Count(&stats.ShadowBanned).Error; err != nil {
		return nil, err
	}
	stats.RegularUsers = stats.TotalUsers - stats.Responders - stats.Admins
	return &stats, nil
}
