package indices

import (
	"flowdesk/es"
	"flowdesk/indices/indexlog"
	"flowdesk/session"
	"flowdesk/workflow"

	"github.com/sirupsen/logrus"
)

var (
	IndexlogRecoveryRoutineFunc = IndexlogRecoveryRoutine

	RecoveryBatchSize = 100
)

// IndexlogRecoveryRoutine replays pending index logs against elasticsearch.
// Records stay pending when the replay fails, so a later run can pick them up.
func IndexlogRecoveryRoutine(s *session.Session) error {
	page := 1
	for {
		logs, err := indexlog.LoadPendingIndexLogFunc(page, RecoveryBatchSize)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			return nil
		}

		for _, record := range logs {
			if recoverIndexLog(&record, s) {
				if err := indexlog.FinishIndexLogFunc(record.ID); err != nil {
					logrus.Warnf("index log recovery: failed to finish index log %d: %v", record.ID, err)
				}
			}
		}
		page++
	}
}

func recoverIndexLog(record *indexlog.IndexLogRecord, s *session.Session) bool {
	if record.Deletion {
		if err := es.DeleteDocumentByIdFunc(WorkflowIndexName, record.SourceId, s); err != nil {
			logrus.Warnf("index log recovery: failed to delete document %d: %v", record.SourceId, err)
			return false
		}
		return true
	}

	detail, err := workflow.DetailWorkflowFunc(record.SourceId, s)
	if err != nil {
		logrus.Warnf("index log recovery: failed to load workflow item %d: %v", record.SourceId, err)
		return false
	}
	if err := IndexWorkflows([]workflow.WorkflowItem{detail.WorkflowItem}, s); err != nil {
		logrus.Warnf("index log recovery: failed to index workflow item %d: %v", record.SourceId, err)
		return false
	}
	return true
}
