package production

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	productionDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/production"
	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/inventory"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	GetGuide(ctx context.Context, id int64) (*productionDatamodel.Guide, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	ListGuides(ctx context.Context, filter GuideFilter, p pagination.Params) ([]*productionDatamodel.Guide, int64, error)
	CreateGuide(ctx context.Context, g *productionDatamodel.Guide) error
	UpdateGuide(ctx context.Context, g *productionDatamodel.Guide) error
	DeleteGuide(ctx context.Context, id int64) error
	SetAssignees(ctx context.Context, guideID int64, userIDs []int64) error
	// ActiveUserIDs returns the subset of ids that belong to active users.
	ActiveUserIDs(ctx context.Context, ids []int64) ([]int64, error)

	GetStep(ctx context.Context, guideID, stepID int64) (*productionDatamodel.Step, error)
	CreateStep(ctx context.Context, step *productionDatamodel.Step) error
	UpdateStep(ctx context.Context, step *productionDatamodel.Step) error
	DeleteStep(ctx context.Context, step *productionDatamodel.Step) error

	GetReservation(ctx context.Context, guideID, id int64) (*productionDatamodel.Reservation, error)
	ListReservations(ctx context.Context, guideID int64) ([]*productionDatamodel.Reservation, error)
	CreateReservation(ctx context.Context, r *productionDatamodel.Reservation) error
	UpdateReservation(ctx context.Context, r *productionDatamodel.Reservation) error
	DeleteReservation(ctx context.Context, id int64) error

	OpenWorkSession(ctx context.Context, stepID, userID int64) (*productionDatamodel.WorkSession, error)
	CreateWorkSession(ctx context.Context, ws *productionDatamodel.WorkSession) error
	UpdateWorkSession(ctx context.Context, ws *productionDatamodel.WorkSession) error
	SumWorkMinutes(ctx context.Context, stepID int64) (int, error)

	GetTemplate(ctx context.Context, id int64) (*productionDatamodel.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*productionDatamodel.Template, error)
	ListTemplates(ctx context.Context, search string, p pagination.Params) ([]*productionDatamodel.Template, int64, error)
	CreateTemplate(ctx context.Context, t *productionDatamodel.Template) error
	DeleteTemplate(ctx context.Context, id int64) error
}

type Service struct {
	repo   RepositoryAPI
	tx     database.TxManager
	ledger inventory.Ledger
	audit  audit.Recorder
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, tx database.TxManager, ledger inventory.Ledger, recorder audit.Recorder, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		ledger: ledger,
		audit:  recorder,
		events: publisher,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for work sessions and withdrawals.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) GetGuide(ctx context.Context, id int64) (*Guide, error) {
	row, err := s.loadGuide(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) ListGuides(ctx context.Context, filter GuideFilter, p pagination.Params) (pagination.Page[*Guide], error) {
	rows, total, err := s.repo.ListGuides(ctx, filter, p)
	if err != nil {
		s.logger.Error("failed to list guides", "error", err)
		return pagination.Page[*Guide]{}, internal.NewInternalError("failed to list guides", err)
	}
	out := make([]*Guide, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return pagination.NewPage(out, total, p), nil
}

// CreateGuide stores a DRAFT guide with its steps and reserves every listed
// item through the ledger, all in one transaction.
func (s *Service) CreateGuide(ctx context.Context, actor *permission.Principal, dto CreateGuideDTO) (*Guide, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	for i, item := range dto.Items {
		if item.StepPosition != nil && *item.StepPosition > len(dto.Steps) {
			return nil, internal.NewValidationFieldError(fmt.Sprintf("items[%d].step_position", i),
				"step_position does not match a step of the guide", internal.ErrCodeValidationFailed)
		}
	}

	var id int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		id, err = s.createGuide(txCtx, actor, dto)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("production guide created", "guide_id", id, "steps", len(dto.Steps), "items", len(dto.Items))
	return s.GetGuide(ctx, id)
}

func (s *Service) createGuide(ctx context.Context, actor *permission.Principal, dto CreateGuideDTO) (int64, error) {
	barcode := strings.TrimSpace(dto.Barcode)
	if barcode == "" {
		barcode = NewBarcode()
	}
	exists, err := s.repo.BarcodeExists(ctx, barcode)
	if err != nil {
		return 0, internal.NewInternalError("failed to check barcode", err)
	}
	if exists {
		return 0, internal.ErrGuideBarcodeTaken
	}

	priority := dto.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	userID := actorID(actor)

	row := &productionDatamodel.Guide{
		Title:       strings.TrimSpace(dto.Title),
		Description: dto.Description,
		Barcode:     barcode,
		Priority:    priority,
		Status:      GuideDraft,
		DueDate:     dto.DueDate,
		CreatedByID: userID,
	}
	if err := s.repo.CreateGuide(ctx, row); err != nil {
		return 0, internal.NewInternalError("failed to create guide", err)
	}

	if len(dto.AssignedUserIDs) > 0 {
		if err := s.assign(ctx, row.ID, dto.AssignedUserIDs); err != nil {
			return 0, err
		}
	}

	stepIDs := make([]int64, 0, len(dto.Steps))
	for i, st := range dto.Steps {
		step := &productionDatamodel.Step{
			GuideID:          row.ID,
			Position:         i + 1,
			Title:            strings.TrimSpace(st.Title),
			Description:      st.Description,
			EstimatedTime:    st.EstimatedTime,
			AssignedToRoleID: st.AssignedToRoleID,
			Status:           StepPending,
		}
		if err := s.repo.CreateStep(ctx, step); err != nil {
			return 0, internal.NewInternalError("failed to create step", err)
		}
		stepIDs = append(stepIDs, step.ID)
	}

	for _, item := range dto.Items {
		var stepID *int64
		if item.StepPosition != nil {
			id := stepIDs[*item.StepPosition-1]
			stepID = &id
		}
		if _, err := s.reserve(ctx, userID, row, item.ItemID, item.Quantity, stepID); err != nil {
			return 0, err
		}
	}

	if err := s.record(ctx, userID, audit.ActionCreate, audit.EntityGuide, row.ID, map[string]interface{}{
		"title": row.Title, "barcode": row.Barcode, "steps": len(dto.Steps), "items": len(dto.Items),
	}); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *Service) UpdateGuide(ctx context.Context, actor *permission.Principal, id int64, dto UpdateGuideDTO) (*Guide, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, id)
		if err != nil {
			return err
		}
		if dto.Title != nil {
			row.Title = strings.TrimSpace(*dto.Title)
		}
		if dto.Description != nil {
			row.Description = *dto.Description
		}
		if dto.Priority != nil {
			row.Priority = *dto.Priority
		}
		if dto.DueDate != nil {
			row.DueDate = dto.DueDate
		}
		if dto.Status != nil {
			row.Status = *dto.Status
		}
		if err := s.repo.UpdateGuide(txCtx, row); err != nil {
			return internal.NewInternalError("failed to update guide", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionUpdate, audit.EntityGuide, id, dto)
	})
	if err != nil {
		return nil, err
	}
	return s.GetGuide(ctx, id)
}

// DeleteGuide soft-deletes a guide and hands its outstanding reservations back
// to available stock.
func (s *Service) DeleteGuide(ctx context.Context, actor *permission.Principal, id int64) error {
	userID := actorID(actor)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadGuide(txCtx, id)
		if err != nil {
			return err
		}
		released := 0
		for i := range row.Reservations {
			r := &row.Reservations[i]
			if !r.Reserved {
				continue
			}
			if err := s.release(txCtx, userID, row, r); err != nil {
				return err
			}
			released++
		}
		if err := s.repo.DeleteGuide(txCtx, id); err != nil {
			return internal.NewInternalError("failed to delete guide", err)
		}
		return s.record(txCtx, userID, audit.ActionDelete, audit.EntityGuide, id, map[string]interface{}{
			"title": row.Title, "barcode": row.Barcode, "released_reservations": released,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("production guide deleted", "guide_id", id)
	return nil
}

// AssignUsers replaces the guide's assignee list.
func (s *Service) AssignUsers(ctx context.Context, actor *permission.Principal, id int64, dto AssignUsersDTO) (*Guide, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.loadEditable(txCtx, id); err != nil {
			return err
		}
		if err := s.assign(txCtx, id, dto.UserIDs); err != nil {
			return err
		}
		return s.record(txCtx, actorID(actor), audit.ActionUpdate, audit.EntityGuide, id, map[string]interface{}{
			"assigned_user_ids": dto.UserIDs,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetGuide(ctx, id)
}

func (s *Service) assign(ctx context.Context, guideID int64, userIDs []int64) error {
	ids := uniqueIDs(userIDs)
	if len(ids) > 0 {
		found, err := s.repo.ActiveUserIDs(ctx, ids)
		if err != nil {
			return internal.NewInternalError("failed to load users", err)
		}
		if missing := difference(ids, found); len(missing) > 0 {
			return internal.NewValidationFieldError("assigned_user_ids",
				fmt.Sprintf("unknown or inactive users: %v", missing), internal.ErrCodeUserNotFound)
		}
	}
	if err := s.repo.SetAssignees(ctx, guideID, ids); err != nil {
		return internal.NewInternalError("failed to assign users", err)
	}
	return nil
}

// Archive moves a guide to ARCHIVED, remembering where it came from. A guide
// with a step IN_PROGRESS cannot be archived.
func (s *Service) Archive(ctx context.Context, actor *permission.Principal, id int64) (*Guide, error) {
	var row *productionDatamodel.Guide
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		row, err = s.loadGuide(txCtx, id)
		if err != nil {
			return err
		}
		if !CanArchive(row.Status) {
			return internal.ErrInvalidTransition.WithDetails(map[string]string{"from": row.Status, "to": GuideArchived})
		}
		var running []int64
		for _, st := range row.Steps {
			if st.Status == StepInProgress {
				running = append(running, st.ID)
			}
		}
		if len(running) > 0 {
			return internal.ErrStepInProgress.WithDetails(map[string]interface{}{"step_ids": running})
		}

		previous := row.Status
		row.StatusBeforeArchive = &previous
		row.Status = GuideArchived
		if err := s.repo.UpdateGuide(txCtx, row); err != nil {
			return internal.NewInternalError("failed to archive guide", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionArchive, audit.EntityGuide, id, map[string]string{"from": previous})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("production guide archived", "guide_id", id, "from", *row.StatusBeforeArchive)
	s.publish(ctx, events.NewGuideArchivedEvent(id, row.CreatedByID, actorID(actor)))
	return s.GetGuide(ctx, id)
}

// Restore returns an archived guide to the status it had when archived, or to
// DRAFT when that is unknown.
func (s *Service) Restore(ctx context.Context, actor *permission.Principal, id int64) (*Guide, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadGuide(txCtx, id)
		if err != nil {
			return err
		}
		if row.Status != GuideArchived {
			return internal.ErrInvalidTransition.WithDetails(map[string]string{"from": row.Status, "to": "RESTORED"})
		}
		target := GuideDraft
		if row.StatusBeforeArchive != nil && CanArchive(*row.StatusBeforeArchive) {
			target = *row.StatusBeforeArchive
		}
		row.Status = target
		row.StatusBeforeArchive = nil
		if err := s.repo.UpdateGuide(txCtx, row); err != nil {
			return internal.NewInternalError("failed to restore guide", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionRestore, audit.EntityGuide, id, map[string]string{"to": target})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("production guide restored", "guide_id", id)
	return s.GetGuide(ctx, id)
}

func (s *Service) AddStep(ctx context.Context, actor *permission.Principal, guideID int64, dto StepDTO) (*Step, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	var step *productionDatamodel.Step
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		position := 1
		for _, st := range row.Steps {
			if st.Position >= position {
				position = st.Position + 1
			}
		}
		step = &productionDatamodel.Step{
			GuideID:          guideID,
			Position:         position,
			Title:            strings.TrimSpace(dto.Title),
			Description:      dto.Description,
			EstimatedTime:    dto.EstimatedTime,
			AssignedToRoleID: dto.AssignedToRoleID,
			Status:           StepPending,
		}
		if err := s.repo.CreateStep(txCtx, step); err != nil {
			return internal.NewInternalError("failed to create step", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionCreate, audit.EntityStep, step.ID, map[string]interface{}{
			"guide_id": guideID, "title": step.Title, "position": position,
		})
	})
	if err != nil {
		return nil, err
	}
	out := StepFromDataModel(step)
	return &out, nil
}

func (s *Service) UpdateStep(ctx context.Context, actor *permission.Principal, guideID, stepID int64, dto UpdateStepDTO) (*Step, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	var step *productionDatamodel.Step
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.loadEditable(txCtx, guideID); err != nil {
			return err
		}
		var err error
		if step, err = s.loadStep(txCtx, guideID, stepID); err != nil {
			return err
		}
		if dto.Title != nil {
			step.Title = strings.TrimSpace(*dto.Title)
		}
		if dto.Description != nil {
			step.Description = *dto.Description
		}
		if dto.EstimatedTime != nil {
			step.EstimatedTime = dto.EstimatedTime
		}
		if dto.ClearRole {
			step.AssignedToRoleID = nil
		} else if dto.AssignedToRoleID != nil {
			step.AssignedToRoleID = dto.AssignedToRoleID
		}
		if err := s.repo.UpdateStep(txCtx, step); err != nil {
			return internal.NewInternalError("failed to update step", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionUpdate, audit.EntityStep, stepID, dto)
	})
	if err != nil {
		return nil, err
	}
	out := StepFromDataModel(step)
	return &out, nil
}

// DeleteStep removes a step and closes the gap in the ordering. Reservations
// bound to it stay on the guide unbound.
func (s *Service) DeleteStep(ctx context.Context, actor *permission.Principal, guideID, stepID int64) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		step, err := s.loadStep(txCtx, guideID, stepID)
		if err != nil {
			return err
		}
		if step.Status == StepInProgress {
			return internal.ErrStepInProgress.WithDetails(map[string]interface{}{"step_ids": []int64{stepID}})
		}
		if err := s.repo.DeleteStep(txCtx, step); err != nil {
			return internal.NewInternalError("failed to delete step", err)
		}
		position := 1
		for i := range row.Steps {
			st := &row.Steps[i]
			if st.ID == stepID {
				continue
			}
			if st.Position != position {
				st.Position = position
				if err := s.repo.UpdateStep(txCtx, st); err != nil {
					return internal.NewInternalError("failed to reorder steps", err)
				}
			}
			position++
		}
		return s.record(txCtx, actorID(actor), audit.ActionDelete, audit.EntityStep, stepID, map[string]interface{}{
			"guide_id": guideID, "title": step.Title,
		})
	})
}

// ReorderSteps sets positions 1..n following stepIDs, which must name every
// step of the guide exactly once.
func (s *Service) ReorderSteps(ctx context.Context, actor *permission.Principal, guideID int64, dto ReorderStepsDTO) (*Guide, error) {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*productionDatamodel.Step, len(row.Steps))
		for i := range row.Steps {
			byID[row.Steps[i].ID] = &row.Steps[i]
		}
		if len(dto.StepIDs) != len(byID) || len(uniqueIDs(dto.StepIDs)) != len(dto.StepIDs) {
			return internal.NewValidationFieldError("step_ids", "step_ids must list every step of the guide once", internal.ErrCodeValidationFailed)
		}
		for i, id := range dto.StepIDs {
			st, ok := byID[id]
			if !ok {
				return internal.NewValidationFieldError("step_ids", fmt.Sprintf("step %d does not belong to the guide", id), internal.ErrCodeStepNotFound)
			}
			if st.Position == i+1 {
				continue
			}
			st.Position = i + 1
			if err := s.repo.UpdateStep(txCtx, st); err != nil {
				return internal.NewInternalError("failed to reorder steps", err)
			}
		}
		return s.record(txCtx, actorID(actor), audit.ActionUpdate, audit.EntityGuide, guideID, map[string]interface{}{"step_order": dto.StepIDs})
	})
	if err != nil {
		return nil, err
	}
	return s.GetGuide(ctx, guideID)
}

// SetStepStatus moves a step one place along its cycle, either to an explicit
// status or by direction, then announces the change.
func (s *Service) SetStepStatus(ctx context.Context, actor *permission.Principal, guideID, stepID int64, dto StepStatusDTO) (*Step, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	var (
		guide *productionDatamodel.Guide
		step  *productionDatamodel.Step
		from  string
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if guide, err = s.loadEditable(txCtx, guideID); err != nil {
			return err
		}
		if step, err = s.loadStep(txCtx, guideID, stepID); err != nil {
			return err
		}
		from = step.Status

		to, ok := targetStatus(from, dto)
		if !ok {
			return internal.ErrInvalidTransition.WithDetails(map[string]string{"from": from, "to": dto.Status, "direction": dto.Direction})
		}
		return s.moveStep(txCtx, actorID(actor), guide, step, to)
	})
	if err != nil {
		return nil, err
	}

	if step.Status != from {
		s.logger.Info("step status changed", "guide_id", guideID, "step_id", stepID, "from", from, "to", step.Status)
		s.publishStepUpdate(ctx, actorID(actor), guide, step, dto.Notify)
	}
	out := StepFromDataModel(step)
	return &out, nil
}

func targetStatus(from string, dto StepStatusDTO) (string, bool) {
	switch dto.Direction {
	case "next":
		return NextStepStatus(from)
	case "back":
		return PrevStepStatus(from)
	}
	return dto.Status, CanMoveStep(from, dto.Status)
}

func (s *Service) moveStep(ctx context.Context, userID int64, guide *productionDatamodel.Guide, step *productionDatamodel.Step, to string) error {
	if step.Status == to {
		return nil
	}
	from := step.Status
	step.Status = to
	if err := s.repo.UpdateStep(ctx, step); err != nil {
		return internal.NewInternalError("failed to update step status", err)
	}
	if to == StepInProgress && guide.Status == GuideDraft {
		guide.Status = GuideInProgress
		if err := s.repo.UpdateGuide(ctx, guide); err != nil {
			return internal.NewInternalError("failed to update guide status", err)
		}
	}
	return s.record(ctx, userID, audit.ActionStatus, audit.EntityStep, step.ID, map[string]interface{}{
		"guide_id": guide.ID, "from": from, "to": to,
	})
}

func (s *Service) publishStepUpdate(ctx context.Context, actor int64, guide *productionDatamodel.Guide, step *productionDatamodel.Step, notify NotifyDTO) {
	event := events.NewStepUpdatedEvent(guide.ID, guide.Title, step.ID, step.Title, step.Status, actor)
	event.NotifyCreator = notify.Creator
	event.NotifyRoleHolder = notify.RoleHolders
	event.CreatorID = guide.CreatedByID
	event.RoleID = step.AssignedToRoleID
	event.RecipientIDs = uniqueIDs(notify.RecipientIDs)
	event.Message = notify.Message
	s.publish(ctx, event)
}

// StartWork opens a work session for actor on a step. A PENDING step moves to
// IN_PROGRESS.
func (s *Service) StartWork(ctx context.Context, actor *permission.Principal, guideID, stepID int64) (*Step, error) {
	userID := actorID(actor)
	var (
		guide *productionDatamodel.Guide
		step  *productionDatamodel.Step
		moved bool
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if guide, err = s.loadEditable(txCtx, guideID); err != nil {
			return err
		}
		if step, err = s.loadStep(txCtx, guideID, stepID); err != nil {
			return err
		}
		if step.Status == StepCompleted {
			return internal.ErrInvalidTransition.WithDetails(map[string]string{"from": StepCompleted, "to": "WORK"})
		}
		open, err := s.repo.OpenWorkSession(txCtx, stepID, userID)
		if err != nil {
			return internal.NewInternalError("failed to load work session", err)
		}
		if open != nil {
			return internal.ErrWorkSessionOpen
		}
		if err := s.repo.CreateWorkSession(txCtx, &productionDatamodel.WorkSession{
			StepID:    stepID,
			UserID:    userID,
			StartedAt: s.now().UTC(),
		}); err != nil {
			return internal.NewInternalError("failed to start work session", err)
		}
		if step.Status == StepPending {
			moved = true
			return s.moveStep(txCtx, userID, guide, step, StepInProgress)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if moved {
		s.publishStepUpdate(ctx, userID, guide, step, NotifyDTO{})
	}
	out := StepFromDataModel(step)
	return &out, nil
}

// StopWork closes actor's running session and recomputes the step's actual
// time as the sum of closed session minutes.
func (s *Service) StopWork(ctx context.Context, actor *permission.Principal, guideID, stepID int64) (*Step, error) {
	userID := actorID(actor)
	var step *productionDatamodel.Step
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.loadGuide(txCtx, guideID); err != nil {
			return err
		}
		var err error
		if step, err = s.loadStep(txCtx, guideID, stepID); err != nil {
			return err
		}
		open, err := s.repo.OpenWorkSession(txCtx, stepID, userID)
		if err != nil {
			return internal.NewInternalError("failed to load work session", err)
		}
		if open == nil {
			return internal.ErrNoWorkSession
		}
		ended := s.now().UTC()
		open.EndedAt = &ended
		open.Minutes = int(ended.Sub(open.StartedAt).Round(time.Minute) / time.Minute)
		if open.Minutes < 0 {
			open.Minutes = 0
		}
		if err := s.repo.UpdateWorkSession(txCtx, open); err != nil {
			return internal.NewInternalError("failed to stop work session", err)
		}
		total, err := s.repo.SumWorkMinutes(txCtx, stepID)
		if err != nil {
			return internal.NewInternalError("failed to sum work time", err)
		}
		step.ActualTime = total
		if err := s.repo.UpdateStep(txCtx, step); err != nil {
			return internal.NewInternalError("failed to update step", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := StepFromDataModel(step)
	return &out, nil
}

func (s *Service) ListReservations(ctx context.Context, guideID int64) ([]Reservation, error) {
	if _, err := s.loadGuide(ctx, guideID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListReservations(ctx, guideID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list reservations", err)
	}
	out := make([]Reservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, ReservationFromDataModel(r))
	}
	return out, nil
}

// AttachItem reserves stock for a guide: a ledger RESERVE plus a reservation
// line, committed together.
func (s *Service) AttachItem(ctx context.Context, actor *permission.Principal, guideID int64, dto AttachItemDTO) (*Reservation, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	var res *productionDatamodel.Reservation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		if dto.StepID != nil {
			if _, err := s.loadStep(txCtx, guideID, *dto.StepID); err != nil {
				return err
			}
		}
		res, err = s.reserve(txCtx, actorID(actor), row, dto.ItemID, dto.Quantity, dto.StepID)
		return err
	})
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListReservations(ctx, guideID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load reservation", err)
	}
	for _, r := range rows {
		if r.ID == res.ID {
			out := ReservationFromDataModel(r)
			return &out, nil
		}
	}
	out := ReservationFromDataModel(res)
	return &out, nil
}

func (s *Service) reserve(ctx context.Context, userID int64, guide *productionDatamodel.Guide, itemID, quantity int64, stepID *int64) (*productionDatamodel.Reservation, error) {
	reason := "reserved for guide " + guide.Barcode
	guideID := guide.ID
	if _, err := s.ledger.Post(ctx, inventory.Movement{
		ItemID:   itemID,
		UserID:   userID,
		Type:     inventory.TxReserve,
		Quantity: quantity,
		Reason:   &reason,
		GuideID:  &guideID,
	}); err != nil {
		return nil, err
	}
	res := &productionDatamodel.Reservation{
		GuideID:  guide.ID,
		ItemID:   itemID,
		StepID:   stepID,
		Quantity: quantity,
		Reserved: true,
	}
	if err := s.repo.CreateReservation(ctx, res); err != nil {
		return nil, internal.NewInternalError("failed to create reservation", err)
	}
	if err := s.record(ctx, userID, audit.ActionReserve, audit.EntityGuide, guide.ID, map[string]interface{}{
		"reservation_id": res.ID, "item_id": itemID, "quantity": quantity,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// ReleaseReservation returns a still-reserved line to available stock and
// removes it from the guide.
func (s *Service) ReleaseReservation(ctx context.Context, actor *permission.Principal, guideID, reservationID int64) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		res, err := s.repo.GetReservation(txCtx, guideID, reservationID)
		if err != nil {
			return internal.NewInternalError("failed to load reservation", err)
		}
		if res == nil {
			return internal.ErrReservationNotFound
		}
		if !res.Reserved {
			return internal.ErrAlreadyWithdrawn
		}
		return s.release(txCtx, actorID(actor), row, res)
	})
}

func (s *Service) release(ctx context.Context, userID int64, guide *productionDatamodel.Guide, res *productionDatamodel.Reservation) error {
	reason := "released from guide " + guide.Barcode
	guideID := guide.ID
	if _, err := s.ledger.Post(ctx, inventory.Movement{
		ItemID:   res.ItemID,
		UserID:   userID,
		Type:     inventory.TxRelease,
		Quantity: res.Quantity,
		Reason:   &reason,
		GuideID:  &guideID,
	}); err != nil {
		return err
	}
	if err := s.repo.DeleteReservation(ctx, res.ID); err != nil {
		return internal.NewInternalError("failed to delete reservation", err)
	}
	return s.record(ctx, userID, audit.ActionRelease, audit.EntityGuide, guide.ID, map[string]interface{}{
		"reservation_id": res.ID, "item_id": res.ItemID, "quantity": res.Quantity,
	})
}

// WithdrawItems issues reserved stock to the floor. Only users assigned to the
// guide, or a superuser, may withdraw. An empty id list withdraws every
// outstanding reservation.
func (s *Service) WithdrawItems(ctx context.Context, actor *permission.Principal, guideID int64, dto WithdrawDTO) ([]Reservation, error) {
	if actor == nil {
		return nil, internal.ErrForbidden
	}
	var withdrawn []Reservation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.loadEditable(txCtx, guideID)
		if err != nil {
			return err
		}
		if !actor.Superuser && !IsAssigned(row, actor.UserID) {
			return internal.ErrNotAssigned
		}

		targets, err := selectWithdrawals(row, dto.ReservationIDs)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		reason := "withdrawn for guide " + row.Barcode
		for _, res := range targets {
			if _, err := s.ledger.Post(txCtx, inventory.Movement{
				ItemID:   res.ItemID,
				UserID:   actor.UserID,
				Type:     inventory.TxIssue,
				Quantity: res.Quantity,
				Reason:   &reason,
				GuideID:  &guideID,
			}); err != nil {
				return err
			}
			res.Reserved = false
			res.WithdrawnByID = &actor.UserID
			res.WithdrawnDate = &now
			if err := s.repo.UpdateReservation(txCtx, res); err != nil {
				return internal.NewInternalError("failed to update reservation", err)
			}
			withdrawn = append(withdrawn, ReservationFromDataModel(res))
		}

		ids := make([]int64, 0, len(targets))
		for _, res := range targets {
			ids = append(ids, res.ID)
		}
		return s.record(txCtx, actor.UserID, audit.ActionWithdraw, audit.EntityGuide, guideID, map[string]interface{}{
			"reservation_ids": ids,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("guide items withdrawn", "guide_id", guideID, "user_id", actor.UserID, "lines", len(withdrawn))
	return withdrawn, nil
}

func selectWithdrawals(guide *productionDatamodel.Guide, ids []int64) ([]*productionDatamodel.Reservation, error) {
	var out []*productionDatamodel.Reservation
	if len(ids) == 0 {
		for i := range guide.Reservations {
			if guide.Reservations[i].Reserved {
				out = append(out, &guide.Reservations[i])
			}
		}
		if len(out) == 0 {
			return nil, internal.NewValidationError("Guide has no reserved items to withdraw", internal.ErrCodeInvalidOperation)
		}
		return out, nil
	}

	byID := make(map[int64]*productionDatamodel.Reservation, len(guide.Reservations))
	for i := range guide.Reservations {
		byID[guide.Reservations[i].ID] = &guide.Reservations[i]
	}
	for _, id := range uniqueIDs(ids) {
		res, ok := byID[id]
		if !ok {
			return nil, internal.ErrReservationNotFound.WithDetails(map[string]int64{"reservation_id": id})
		}
		if !res.Reserved {
			return nil, internal.ErrAlreadyWithdrawn.WithDetails(map[string]int64{"reservation_id": id})
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Service) loadGuide(ctx context.Context, id int64) (*productionDatamodel.Guide, error) {
	row, err := s.repo.GetGuide(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load guide", err)
	}
	if row == nil {
		return nil, internal.ErrGuideNotFound
	}
	return row, nil
}

// loadEditable is loadGuide for mutations; archived guides are read-only.
func (s *Service) loadEditable(ctx context.Context, id int64) (*productionDatamodel.Guide, error) {
	row, err := s.loadGuide(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status == GuideArchived {
		return nil, internal.ErrGuideArchived
	}
	return row, nil
}

func (s *Service) loadStep(ctx context.Context, guideID, stepID int64) (*productionDatamodel.Step, error) {
	step, err := s.repo.GetStep(ctx, guideID, stepID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load step", err)
	}
	if step == nil {
		return nil, internal.ErrStepNotFound
	}
	return step, nil
}

// NewBarcode returns a fresh guide barcode.
func NewBarcode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PG-" + strings.ToUpper(raw[:12])
}

func (s *Service) record(ctx context.Context, userID int64, action, entity string, id int64, details any) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, userID, action, entity, id, details); err != nil {
		return internal.NewInternalError("failed to write audit log", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func actorID(p *permission.Principal) int64 {
	if p == nil {
		return 0
	}
	return p.UserID
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func difference(want, have []int64) []int64 {
	set := make(map[int64]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	var missing []int64
	for _, id := range want {
		if _, ok := set[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
