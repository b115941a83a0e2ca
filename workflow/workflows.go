package workflow

import (
	"flowdesk/account"
	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/flow"
	"flowdesk/idgen"
	"flowdesk/persistence"
	"flowdesk/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	workflowIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateWorkflowFunc     = CreateWorkflow
	DetailWorkflowFunc     = DetailWorkflow
	QueryWorkflowsFunc     = QueryWorkflows
	UpdateWorkflowFunc     = UpdateWorkflow
	DeleteWorkflowFunc     = DeleteWorkflow
	TransitionWorkflowFunc = TransitionWorkflow
	LoadWorkflowsFunc      = LoadWorkflows
)

func CreateWorkflow(c *WorkflowCreation, s *session.Session) (*WorkflowDetail, error) {
	if !s.HasAnyRole(authority.RoleAdmin, authority.RoleManager) {
		return nil, bizerror.ErrForbidden
	}

	now := types.CurrentTimestamp()
	item := WorkflowItem{
		ID:          idgen.NextID(workflowIdWorker),
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Priority:    c.Priority,
		State:       flow.StateCreated,
		CreatorID:   s.Identity.ID,
		CreatorName: s.Identity.Name,
		CreateTime:  now,
		UpdateTime:  now,
	}
	if item.Priority == "" {
		item.Priority = PriorityMedium
	}
	if c.AssigneeID != 0 {
		assignee, err := account.FindUserFunc(c.AssigneeID)
		if err != nil {
			return nil, err
		}
		item.AssigneeID = assignee.ID
		item.AssigneeName = assignee.DisplayName()
	}

	var record *audit.AuditLog
	err := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		var err error
		record, err = audit.Append(tx, audit.ActionWorkflowCreated, EntityTypeWorkflowItem, item.ID,
			"workflow item created", nil,
			audit.ChangedValues{"title": item.Title, "state": string(item.State)}, &s.Identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}

	return detailOf(&item, s), nil
}

func DetailWorkflow(id types.ID, s *session.Session) (*WorkflowDetail, error) {
	item := WorkflowItem{ID: id}
	if err := persistence.ActiveDataSourceManager.GormDB(s.Context).Where(&item).First(&item).Error; err != nil {
		return nil, err
	}
	if !visibleToSession(&item, s) {
		return nil, bizerror.ErrForbidden
	}
	return detailOf(&item, s), nil
}

func QueryWorkflows(q *WorkflowQuery, s *session.Session) ([]WorkflowItem, uint64, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context).Model(&WorkflowItem{})
	if q.State != "" {
		db = db.Where("state = ?", q.State)
	}
	if q.Name != "" {
		db = db.Where("title LIKE ?", "%"+q.Name+"%")
	}
	if q.Priority != "" {
		db = db.Where("priority = ?", q.Priority)
	}
	// viewers and reviewers only see items assigned to them
	if s.HasAnyRole(authority.RoleViewer, authority.RoleReviewer) {
		db = db.Where("assignee_id = ?", s.Identity.ID)
	}

	var total uint64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	var items []WorkflowItem
	if err := db.Order("create_time DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func UpdateWorkflow(id types.ID, u *WorkflowUpdating, s *session.Session) (*WorkflowDetail, error) {
	if !s.HasAnyRole(authority.RoleAdmin, authority.RoleManager) {
		return nil, bizerror.ErrForbidden
	}

	var item WorkflowItem
	var record *audit.AuditLog
	err1 := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		item = WorkflowItem{ID: id}
		if err := tx.Where(&item).First(&item).Error; err != nil {
			return err
		}
		if item.State.IsTerminal() {
			return bizerror.ErrStateTerminal
		}

		changes := map[string]interface{}{
			"title":       u.Title,
			"description": u.Description,
			"category":    u.Category,
			"update_time": types.CurrentTimestamp(),
		}
		oldValues := audit.ChangedValues{"title": item.Title}
		newValues := audit.ChangedValues{"title": u.Title}
		if u.Priority != "" {
			changes["priority"] = u.Priority
			oldValues["priority"] = string(item.Priority)
			newValues["priority"] = string(u.Priority)
		}
		if u.AssigneeID != 0 && u.AssigneeID != item.AssigneeID {
			assignee, err := account.FindUserFunc(u.AssigneeID)
			if err != nil {
				return err
			}
			changes["assignee_id"] = assignee.ID
			changes["assignee_name"] = assignee.DisplayName()
			oldValues["assigneeName"] = item.AssigneeName
			newValues["assigneeName"] = assignee.DisplayName()
		}

		if err := tx.Model(&WorkflowItem{}).Where(&WorkflowItem{ID: id}).Updates(changes).Error; err != nil {
			return err
		}
		if err := tx.Where(&WorkflowItem{ID: id}).First(&item).Error; err != nil {
			return err
		}

		var err error
		record, err = audit.Append(tx, audit.ActionWorkflowUpdated, EntityTypeWorkflowItem, id,
			"workflow item updated", oldValues, newValues, &s.Identity)
		return err
	})
	if err1 != nil {
		return nil, err1
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}

	return detailOf(&item, s), nil
}

func DeleteWorkflow(id types.ID, s *session.Session) error {
	if !s.HasAnyRole(authority.RoleAdmin) {
		return bizerror.ErrForbidden
	}

	var record *audit.AuditLog
	err1 := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		item := WorkflowItem{ID: id}
		if err := tx.Where(&item).First(&item).Error; err != nil {
			return err
		}
		if err := tx.Delete(&WorkflowItem{}, "id = ?", id).Error; err != nil {
			return err
		}

		var err error
		record, err = audit.Append(tx, audit.ActionWorkflowDeleted, EntityTypeWorkflowItem, id,
			"workflow item deleted", audit.ChangedValues{"title": item.Title, "state": string(item.State)},
			nil, &s.Identity)
		return err
	})
	if err1 != nil {
		return err1
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}
	return nil
}

// TransitionWorkflow drives a workflow item through its lifecycle. The state
// change is guarded with a compare-and-swap on the loaded state, so a stale or
// concurrent request falls out as an invalid transition instead of a lost update.
func TransitionWorkflow(id types.ID, req *TransitionRequest, s *session.Session) (*WorkflowDetail, error) {
	var item WorkflowItem
	var record *audit.AuditLog
	err1 := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		item = WorkflowItem{ID: id}
		if err := tx.Where(&item).First(&item).Error; err != nil {
			return err
		}

		from := item.State
		to, err := flow.Validate(from, req.Action, s.Identity.Role, isEditor(&item, s))
		if err != nil {
			return err
		}

		now := types.CurrentTimestamp()
		db := tx.Model(&WorkflowItem{}).Where("id = ? AND state = ?", id, from).
			Updates(map[string]interface{}{"state": to, "comments": req.Comments, "update_time": now})
		if db.Error != nil {
			return db.Error
		}
		if db.RowsAffected != 1 {
			return bizerror.ErrInvalidTransition
		}
		item.State = to
		item.Comments = req.Comments
		item.UpdateTime = now

		record, err = audit.Append(tx, audit.ActionWorkflowTransitioned, EntityTypeWorkflowItem, id,
			string(req.Action),
			audit.ChangedValues{"state": string(from)},
			audit.ChangedValues{"state": string(to), "comments": req.Comments}, &s.Identity)
		return err
	})
	if err1 != nil {
		return nil, err1
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}

	return detailOf(&item, s), nil
}

// LoadWorkflows pages through all workflow items without visibility filtering.
// It serves internal consumers, not the REST surface.
func LoadWorkflows(page, size int) ([]WorkflowItem, error) {
	if page < 1 {
		page = 1
	}
	var items []WorkflowItem
	err := persistence.ActiveDataSourceManager.GormDB(nil).Model(&WorkflowItem{}).
		Order("id ASC").Offset((page - 1) * size).Limit(size).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func isEditor(item *WorkflowItem, s *session.Session) bool {
	return item.CreatorID == s.Identity.ID || (item.AssigneeID != 0 && item.AssigneeID == s.Identity.ID)
}

func visibleToSession(item *WorkflowItem, s *session.Session) bool {
	if s.HasAnyRole(authority.RoleAdmin, authority.RoleManager) {
		return true
	}
	return item.AssigneeID == s.Identity.ID
}

func detailOf(item *WorkflowItem, s *session.Session) *WorkflowDetail {
	return &WorkflowDetail{
		WorkflowItem:   *item,
		AllowedActions: flow.AllowedActions(item.State, s.Identity.Role, isEditor(item, s)),
	}
}
