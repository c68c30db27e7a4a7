package postgres

import (
	"context"

	"github.com/proctorhub/session-service/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	db        *gorm.DB
	session   repositories.SessionRepository
	violation repositories.ViolationRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{
		db:        db,
		session:   NewSessionPostgreSQL(db),
		violation: NewViolationPostgreSQL(db),
	}
}

func (r *repository) Session() repositories.SessionRepository {
	return r.session
}

func (r *repository) Violation() repositories.ViolationRepository {
	return r.violation
}

func (r *repository) Transaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
