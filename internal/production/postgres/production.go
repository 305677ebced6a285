package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/production-management/internal/core/database"
	productionDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/production"
	userDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/user"
	"github.com/frahmantamala/production-management/internal/production"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const assigneeTable = "guide_assigned_users"

type ProductionRepository struct {
	db *gorm.DB
}

func NewProductionRepository(db *gorm.DB) production.RepositoryAPI {
	return &ProductionRepository{db: db}
}

func orderedSteps(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func orderedByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (r *ProductionRepository) GetGuide(ctx context.Context, id int64) (*productionDatamodel.Guide, error) {
	var g productionDatamodel.Guide
	err := database.GetDB(ctx, r.db).
		Preload("AssignedUsers", orderedByID).
		Preload("Steps", orderedSteps).
		Preload("Reservations", orderedByID).
		Preload("Reservations.Item").
		First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// BarcodeExists also sees soft-deleted guides, which still hold the unique
// index entry.
func (r *ProductionRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var count int64
	err := database.GetDB(ctx, r.db).Unscoped().Model(&productionDatamodel.Guide{}).
		Where("barcode = ?", barcode).Count(&count).Error
	return count > 0, err
}

func (r *ProductionRepository) ListGuides(ctx context.Context, filter production.GuideFilter, p pagination.Params) ([]*productionDatamodel.Guide, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&productionDatamodel.Guide{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(barcode) LIKE ?", like, like)
	}
	switch {
	case filter.Status != "":
		q = q.Where("status = ?", filter.Status)
	case !filter.IncludeArchived:
		q = q.Where("status <> ?", production.GuideArchived)
	}
	if filter.Priority != "" {
		q = q.Where("priority = ?", filter.Priority)
	}
	if filter.AssignedTo != nil {
		q = q.Where("id IN (?)", database.GetDB(ctx, r.db).Table(assigneeTable).
			Select("guide_id").Where("user_id = ?", *filter.AssignedTo))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var guides []*productionDatamodel.Guide
	err := q.Preload("AssignedUsers", orderedByID).
		Preload("Steps", orderedSteps).
		Order("created_at DESC, id DESC").
		Offset(p.Offset).Limit(p.Limit).
		Find(&guides).Error
	return guides, total, err
}

func (r *ProductionRepository) CreateGuide(ctx context.Context, g *productionDatamodel.Guide) error {
	return database.GetDB(ctx, r.db).Omit(clause.Associations).Create(g).Error
}

func (r *ProductionRepository) UpdateGuide(ctx context.Context, g *productionDatamodel.Guide) error {
	return database.GetDB(ctx, r.db).Model(&productionDatamodel.Guide{}).
		Where("id = ?", g.ID).
		Updates(map[string]interface{}{
			"title":                 g.Title,
			"description":           g.Description,
			"priority":              g.Priority,
			"status":                g.Status,
			"status_before_archive": g.StatusBeforeArchive,
			"due_date":              g.DueDate,
		}).Error
}

func (r *ProductionRepository) DeleteGuide(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Delete(&productionDatamodel.Guide{}, id).Error
}

func (r *ProductionRepository) SetAssignees(ctx context.Context, guideID int64, userIDs []int64) error {
	db := database.GetDB(ctx, r.db)
	if err := db.Exec("DELETE FROM "+assigneeTable+" WHERE guide_id = ?", guideID).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, map[string]interface{}{"guide_id": guideID, "user_id": id})
	}
	return db.Table(assigneeTable).Create(rows).Error
}

func (r *ProductionRepository) ActiveUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var found []int64
	err := database.GetDB(ctx, r.db).Model(&userDatamodel.User{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Pluck("id", &found).Error
	return found, err
}

func (r *ProductionRepository) GetStep(ctx context.Context, guideID, stepID int64) (*productionDatamodel.Step, error) {
	var step productionDatamodel.Step
	err := database.GetDB(ctx, r.db).Where("id = ? AND guide_id = ?", stepID, guideID).First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &step, nil
}

func (r *ProductionRepository) CreateStep(ctx context.Context, step *productionDatamodel.Step) error {
	return database.GetDB(ctx, r.db).Create(step).Error
}

func (r *ProductionRepository) UpdateStep(ctx context.Context, step *productionDatamodel.Step) error {
	return database.GetDB(ctx, r.db).Save(step).Error
}

// DeleteStep drops the step with its work sessions and unbinds reservations
// that pointed at it.
func (r *ProductionRepository) DeleteStep(ctx context.Context, step *productionDatamodel.Step) error {
	db := database.GetDB(ctx, r.db)
	if err := db.Model(&productionDatamodel.Reservation{}).
		Where("step_id = ?", step.ID).
		Update("step_id", nil).Error; err != nil {
		return err
	}
	if err := db.Where("step_id = ?", step.ID).Delete(&productionDatamodel.WorkSession{}).Error; err != nil {
		return err
	}
	return db.Delete(&productionDatamodel.Step{}, step.ID).Error
}

func (r *ProductionRepository) GetReservation(ctx context.Context, guideID, id int64) (*productionDatamodel.Reservation, error) {
	var res productionDatamodel.Reservation
	err := database.GetDB(ctx, r.db).Where("id = ? AND guide_id = ?", id, guideID).First(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (r *ProductionRepository) ListReservations(ctx context.Context, guideID int64) ([]*productionDatamodel.Reservation, error) {
	var rows []*productionDatamodel.Reservation
	err := database.GetDB(ctx, r.db).Preload("Item").
		Where("guide_id = ?", guideID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *ProductionRepository) CreateReservation(ctx context.Context, res *productionDatamodel.Reservation) error {
	return database.GetDB(ctx, r.db).Omit(clause.Associations).Create(res).Error
}

func (r *ProductionRepository) UpdateReservation(ctx context.Context, res *productionDatamodel.Reservation) error {
	return database.GetDB(ctx, r.db).Model(&productionDatamodel.Reservation{}).
		Where("id = ?", res.ID).
		Updates(map[string]interface{}{
			"step_id":         res.StepID,
			"quantity":        res.Quantity,
			"reserved":        res.Reserved,
			"withdrawn_by_id": res.WithdrawnByID,
			"withdrawn_date":  res.WithdrawnDate,
		}).Error
}

func (r *ProductionRepository) DeleteReservation(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Delete(&productionDatamodel.Reservation{}, id).Error
}

func (r *ProductionRepository) OpenWorkSession(ctx context.Context, stepID, userID int64) (*productionDatamodel.WorkSession, error) {
	var ws productionDatamodel.WorkSession
	err := database.GetDB(ctx, r.db).
		Where("step_id = ? AND user_id = ? AND ended_at IS NULL", stepID, userID).
		Order("id DESC").
		First(&ws).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ws, nil
}

func (r *ProductionRepository) CreateWorkSession(ctx context.Context, ws *productionDatamodel.WorkSession) error {
	return database.GetDB(ctx, r.db).Create(ws).Error
}

func (r *ProductionRepository) UpdateWorkSession(ctx context.Context, ws *productionDatamodel.WorkSession) error {
	return database.GetDB(ctx, r.db).Save(ws).Error
}

func (r *ProductionRepository) SumWorkMinutes(ctx context.Context, stepID int64) (int, error) {
	var total int
	err := database.GetDB(ctx, r.db).Model(&productionDatamodel.WorkSession{}).
		Where("step_id = ? AND ended_at IS NOT NULL", stepID).
		Select("COALESCE(SUM(minutes), 0)").
		Scan(&total).Error
	return total, err
}

func (r *ProductionRepository) GetTemplate(ctx context.Context, id int64) (*productionDatamodel.Template, error) {
	return r.firstTemplate(database.GetDB(ctx, r.db).Where("id = ?", id))
}

func (r *ProductionRepository) GetTemplateByName(ctx context.Context, name string) (*productionDatamodel.Template, error) {
	return r.firstTemplate(database.GetDB(ctx, r.db).Where("LOWER(name) = ?", strings.ToLower(name)))
}

func (r *ProductionRepository) firstTemplate(q *gorm.DB) (*productionDatamodel.Template, error) {
	var t productionDatamodel.Template
	if err := q.First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *ProductionRepository) ListTemplates(ctx context.Context, search string, p pagination.Params) ([]*productionDatamodel.Template, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&productionDatamodel.Template{})
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*productionDatamodel.Template
	err := q.Order("name ASC, id ASC").Offset(p.Offset).Limit(p.Limit).Find(&rows).Error
	return rows, total, err
}

func (r *ProductionRepository) CreateTemplate(ctx context.Context, t *productionDatamodel.Template) error {
	return database.GetDB(ctx, r.db).Create(t).Error
}

func (r *ProductionRepository) DeleteTemplate(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Delete(&productionDatamodel.Template{}, id).Error
}
