package production

import (
	"context"
	"fmt"
	"strings"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	productionDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/production"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

// CreateTemplate stores a reusable guide blueprint, either snapshotted from an
// existing guide (dto.GuideID) or built from the payload.
func (s *Service) CreateTemplate(ctx context.Context, actor *permission.Principal, dto CreateTemplateDTO) (*Template, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	row := &productionDatamodel.Template{
		Name:        strings.TrimSpace(dto.Name),
		Description: dto.Description,
		Priority:    dto.Priority,
		CreatedByID: actorID(actor),
	}

	if dto.GuideID != nil {
		guide, err := s.loadGuide(ctx, *dto.GuideID)
		if err != nil {
			return nil, err
		}
		snapshot(row, guide)
		if row.Description == "" {
			row.Description = guide.Description
		}
		if dto.Priority == "" {
			row.Priority = guide.Priority
		}
	} else {
		for i, st := range dto.Steps {
			row.Steps = append(row.Steps, productionDatamodel.TemplateStep{
				Position:         i + 1,
				Title:            strings.TrimSpace(st.Title),
				Description:      st.Description,
				EstimatedTime:    st.EstimatedTime,
				AssignedToRoleID: st.AssignedToRoleID,
			})
		}
		for i, item := range dto.Items {
			if item.StepPosition != nil && *item.StepPosition > len(dto.Steps) {
				return nil, internal.NewValidationFieldError(fmt.Sprintf("items[%d].step_position", i),
					"step_position does not match a step of the template", internal.ErrCodeValidationFailed)
			}
			row.Items = append(row.Items, productionDatamodel.TemplateItem{
				ItemID:       item.ItemID,
				Quantity:     item.Quantity,
				StepPosition: item.StepPosition,
			})
		}
	}
	if row.Priority == "" {
		row.Priority = PriorityNormal
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetTemplateByName(txCtx, row.Name)
		if err != nil {
			return internal.NewInternalError("failed to check template name", err)
		}
		if existing != nil {
			return internal.ErrTemplateNameTaken
		}
		if err := s.repo.CreateTemplate(txCtx, row); err != nil {
			return internal.NewInternalError("failed to create template", err)
		}
		return s.record(txCtx, row.CreatedByID, audit.ActionCreate, audit.EntityTemplate, row.ID, map[string]interface{}{
			"name": row.Name, "source_guide_id": row.SourceGuideID, "steps": len(row.Steps), "items": len(row.Items),
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("production template created", "template_id", row.ID, "name", row.Name)
	return TemplateFromDataModel(row), nil
}

// snapshot copies a guide's steps and inventory lines into a template.
// Reservation step bindings become step positions.
func snapshot(t *productionDatamodel.Template, g *productionDatamodel.Guide) {
	id := g.ID
	t.SourceGuideID = &id

	positions := make(map[int64]int, len(g.Steps))
	for i, st := range g.Steps {
		positions[st.ID] = i + 1
		t.Steps = append(t.Steps, productionDatamodel.TemplateStep{
			Position:         i + 1,
			Title:            st.Title,
			Description:      st.Description,
			EstimatedTime:    st.EstimatedTime,
			AssignedToRoleID: st.AssignedToRoleID,
		})
	}
	for _, r := range g.Reservations {
		item := productionDatamodel.TemplateItem{ItemID: r.ItemID, Quantity: r.Quantity}
		if r.StepID != nil {
			if pos, ok := positions[*r.StepID]; ok {
				item.StepPosition = &pos
			}
		}
		if r.Item != nil {
			item.ItemName = r.Item.Name
		}
		t.Items = append(t.Items, item)
	}
}

func (s *Service) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load template", err)
	}
	if row == nil {
		return nil, internal.ErrTemplateNotFound
	}
	return TemplateFromDataModel(row), nil
}

func (s *Service) ListTemplates(ctx context.Context, search string, p pagination.Params) (pagination.Page[*Template], error) {
	rows, total, err := s.repo.ListTemplates(ctx, search, p)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		return pagination.Page[*Template]{}, internal.NewInternalError("failed to list templates", err)
	}
	out := make([]*Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, TemplateFromDataModel(row))
	}
	return pagination.NewPage(out, total, p), nil
}

func (s *Service) DeleteTemplate(ctx context.Context, actor *permission.Principal, id int64) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetTemplate(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load template", err)
		}
		if row == nil {
			return internal.ErrTemplateNotFound
		}
		if err := s.repo.DeleteTemplate(txCtx, id); err != nil {
			return internal.NewInternalError("failed to delete template", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionDelete, audit.EntityTemplate, id, map[string]string{"name": row.Name})
	})
}

// Instantiate creates a DRAFT guide from a template: PENDING steps and fresh
// reservations for every inventory line.
func (s *Service) Instantiate(ctx context.Context, actor *permission.Principal, templateID int64, dto InstantiateTemplateDTO) (*Guide, error) {
	tpl, err := s.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load template", err)
	}
	if tpl == nil {
		return nil, internal.ErrTemplateNotFound
	}

	title := strings.TrimSpace(dto.Title)
	if title == "" {
		title = tpl.Name
	}
	create := CreateGuideDTO{
		Title:           title,
		Description:     tpl.Description,
		Priority:        tpl.Priority,
		DueDate:         dto.DueDate,
		AssignedUserIDs: dto.AssignedUserIDs,
	}
	for _, st := range tpl.Steps {
		create.Steps = append(create.Steps, StepDTO{
			Title:            st.Title,
			Description:      st.Description,
			EstimatedTime:    st.EstimatedTime,
			AssignedToRoleID: st.AssignedToRoleID,
		})
	}
	for _, item := range tpl.Items {
		create.Items = append(create.Items, AttachItemDTO{
			ItemID:       item.ItemID,
			Quantity:     item.Quantity,
			StepPosition: item.StepPosition,
		})
	}

	guide, err := s.CreateGuide(ctx, actor, create)
	if err != nil {
		return nil, err
	}
	s.logger.Info("guide created from template", "template_id", templateID, "guide_id", guide.ID)
	return guide, nil
}
