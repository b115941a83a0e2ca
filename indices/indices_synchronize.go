package indices

import (
	"context"
	"fmt"
	"sync"

	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/es"
	"flowdesk/indices/indexlog"
	"flowdesk/persistence"
	"flowdesk/session"
	"flowdesk/workflow"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	WorkflowIndexHandlerName = "workflowIndexer"
	indexRobot               = &session.Session{
		Identity: session.Identity{ID: 10, Name: "index-robot", Role: authority.RoleAdmin},
		Context:  context.Background(),
	}

	lock    sync.Mutex
	running bool

	IndicesFullSyncFunc       = IndicesFullSync
	ScheduleNewSyncRunFunc    = ScheduleNewSyncRun
	RecordPendingIndexLogFunc = recordPendingIndexLog
)

func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if !s.HasAnyRole(authority.RoleAdmin) {
		return false, bizerror.ErrForbidden
	}

	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		IndicesFullSyncFunc()
	}()
	waitRunning.Wait()
	return true, nil
}

var (
	SyncBatchSize = 500

	// SyncLoadFailureLimit consecutive load failures abort the run
	SyncLoadFailureLimit = 3
)

func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	page := 1
	failures := 0
	for {
		items, err := workflow.LoadWorkflowsFunc(page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices fully sync: error on retrieve workflow items(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			failures++
			if failures >= SyncLoadFailureLimit {
				return fmt.Errorf("indices full sync aborted after %d consecutive load failures: %v", failures, err)
			}
			page++
			continue
		}
		failures = 0

		if len(items) == 0 {
			logrus.Infof("indices fully sync: there are no more workflow items to index")
			return nil // loop exit
		}

		if err := IndexWorkflows(items, indexRobot); err != nil {
			logrus.Warnf("indices fully sync: error on index workflow items(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
		page++
	}
}

// IndexWorkflowAuditHandle keeps the search index in step with audited workflow
// changes. A failed write leaves a pending index log so the recovery routine
// can replay it later.
func IndexWorkflowAuditHandle(l *audit.AuditLog) *audit.HandleResult {
	if l == nil || l.EntityType != workflow.EntityTypeWorkflowItem {
		return nil
	}

	if l.Action == audit.ActionWorkflowDeleted {
		if err := es.DeleteDocumentByIdFunc(WorkflowIndexName, l.EntityID, indexRobot); err != nil {
			RecordPendingIndexLogFunc(l, true)
			return &audit.HandleResult{
				Message:           fmt.Sprintf("delete workflow index %d, %v", l.EntityID, err),
				HandlerIdentifier: WorkflowIndexHandlerName,
			}
		}
		return &audit.HandleResult{Success: true, HandlerIdentifier: WorkflowIndexHandlerName}
	}

	detail, err := workflow.DetailWorkflowFunc(l.EntityID, indexRobot)
	if err != nil {
		RecordPendingIndexLogFunc(l, false)
		return &audit.HandleResult{
			Message:           fmt.Sprintf("detail workflow when index workflow %d, %v", l.EntityID, err),
			HandlerIdentifier: WorkflowIndexHandlerName,
		}
	}
	if err := IndexWorkflows([]workflow.WorkflowItem{detail.WorkflowItem}, indexRobot); err != nil {
		RecordPendingIndexLogFunc(l, false)
		return &audit.HandleResult{
			Message:           fmt.Sprintf("index workflow %d, %v", l.EntityID, err),
			HandlerIdentifier: WorkflowIndexHandlerName,
		}
	}
	return &audit.HandleResult{Success: true, HandlerIdentifier: WorkflowIndexHandlerName}
}

func recordPendingIndexLog(l *audit.AuditLog, deletion bool) {
	err := persistence.ActiveDataSourceManager.GormDB(context.Background()).Transaction(func(tx *gorm.DB) error {
		_, err := indexlog.CreateIndexLogFunc(l.EntityType, l.EntityID, l.Details, deletion, tx)
		return err
	})
	if err != nil {
		logrus.Warnf("failed to record pending index log of %s %d: %v", l.EntityType, l.EntityID, err)
	}
}
