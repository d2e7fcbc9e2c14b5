package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStaleSecret means a compare-and-swap on a session's secret
	// hash found the row already rotated by a concurrent refresh.
	ErrStaleSecret = errors.New("stale session secret")
)

type GormRepo struct {
	DB *gorm.DB
}
