package postgres

import (
	"context"

	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	auditDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/audit"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *auditDatamodel.Log) error {
	return database.GetDB(ctx, r.db).Create(entry).Error
}

func (r *AuditRepository) List(ctx context.Context, filter audit.Filter, p pagination.Params) ([]*auditDatamodel.Log, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&auditDatamodel.Log{})
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []*auditDatamodel.Log
	err := q.Order("created_at DESC, id DESC").Offset(p.Offset).Limit(p.Limit).Find(&logs).Error
	return logs, total, err
}
