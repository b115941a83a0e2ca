package workflow

import (
	"flowdesk/flow"

	"github.com/fundwit/go-commons/types"
)

const EntityTypeWorkflowItem = "WorkflowItem"

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

type WorkflowItem struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Title       string   `json:"title"`
	Description string   `json:"description" sql:"type:TEXT"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`

	State flow.State `json:"state"`

	CreatorID   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`

	AssigneeID   types.ID `json:"assigneeId"`
	AssigneeName string   `json:"assigneeName"`

	// most recent transition comment, last write wins
	Comments string `json:"comments"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6)"`
	UpdateTime types.Timestamp `json:"updateTime" sql:"type:DATETIME(6)"`
}

func (r *WorkflowItem) TableName() string {
	return "workflow_items"
}

type WorkflowDetail struct {
	WorkflowItem

	AllowedActions []flow.Action `json:"allowedActions"`
}

type WorkflowCreation struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`

	AssigneeID types.ID `json:"assigneeId"`
}

type WorkflowUpdating struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority" binding:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`

	AssigneeID types.ID `json:"assigneeId"`
}

type TransitionRequest struct {
	Action   flow.Action `json:"action" binding:"required"`
	Comments string      `json:"comments" binding:"max=500"`
}

type WorkflowQuery struct {
	State    flow.State `json:"state" form:"state"`
	Name     string     `json:"name" form:"name"`
	Priority Priority   `json:"priority" form:"priority"`

	Page int `json:"page" form:"page"`
	Size int `json:"size" form:"size"`
}
