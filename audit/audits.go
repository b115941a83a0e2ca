package audit

import (
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/idgen"
	"flowdesk/persistence"
	"flowdesk/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	auditIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	AuditPersistCreateFunc = auditPersistCreate
	QueryAuditLogsFunc     = QueryAuditLogs
)

func auditPersistCreate(record *AuditLog, db *gorm.DB) error {
	return db.Create(record).Error
}

// Append records one mutating action. It runs on the caller's
// transaction handle so the entry commits or rolls back with the
// mutation it describes.
func Append(tx *gorm.DB, action, entityType string, entityID types.ID, details string,
	oldValues, newValues ChangedValues, identity *session.Identity) (*AuditLog, error) {

	record := AuditLog{
		ID:         idgen.NextID(auditIdWorker),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,

		PerformedBy:     identity.ID,
		PerformedByName: identity.Name,

		OldValues: oldValues,
		NewValues: newValues,

		CreateTime: types.CurrentTimestamp(),
	}
	if err := AuditPersistCreateFunc(&record, tx); err != nil {
		return nil, err
	}
	return &record, nil
}

type AuditLogQuery struct {
	EntityType  string   `json:"entityType" form:"entityType"`
	EntityID    types.ID `json:"entityId" form:"entityId"`
	Action      string   `json:"action" form:"action"`
	PerformedBy types.ID `json:"performedBy" form:"performedBy"`

	Page int `json:"page" form:"page"`
	Size int `json:"size" form:"size"`
}

func QueryAuditLogs(query *AuditLogQuery, s *session.Session) ([]AuditLog, uint64, error) {
	if !s.HasAnyRole(authority.RoleAdmin, authority.RoleManager, authority.RoleReviewer) {
		return nil, 0, bizerror.ErrForbidden
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	q := db.Model(&AuditLog{})
	if query.EntityType != "" {
		q = q.Where("entity_type = ?", query.EntityType)
	}
	if !query.EntityID.IsZero() {
		q = q.Where("entity_id = ?", query.EntityID)
	}
	if query.Action != "" {
		q = q.Where("action = ?", query.Action)
	}
	if !query.PerformedBy.IsZero() {
		q = q.Where("performed_by = ?", query.PerformedBy)
	}

	var total uint64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := query.Page, query.Size
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}

	records := []AuditLog{}
	if err := q.Order("create_time DESC").Offset(offset).Limit(size).Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
