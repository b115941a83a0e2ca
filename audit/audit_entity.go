package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fundwit/go-commons/types"
)

const (
	ActionWorkflowCreated      = "WORKFLOW_CREATED"
	ActionWorkflowUpdated      = "WORKFLOW_UPDATED"
	ActionWorkflowTransitioned = "WORKFLOW_TRANSITIONED"
	ActionWorkflowDeleted      = "WORKFLOW_DELETED"

	ActionUserCreated = "USER_CREATED"
	ActionUserUpdated = "USER_UPDATED"
	ActionUserLogin   = "USER_LOGIN"
)

// ChangedValues property snapshot stored as a JSON column
type ChangedValues map[string]string

type AuditLog struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Action     string   `json:"action"`
	EntityType string   `json:"entityType"`
	EntityID   types.ID `json:"entityId"`
	Details    string   `json:"details" sql:"type:TEXT"`

	PerformedBy     types.ID `json:"performedBy"`
	PerformedByName string   `json:"performedByName"`

	OldValues ChangedValues `json:"oldValues" sql:"type:TEXT"`
	NewValues ChangedValues `json:"newValues" sql:"type:TEXT"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6)"`
}

func (r *AuditLog) TableName() string {
	return "audit_logs"
}

func (t ChangedValues) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *ChangedValues) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}
