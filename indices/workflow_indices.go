package indices

import (
	"fmt"

	"flowdesk/es"
	"flowdesk/session"
	"flowdesk/workflow"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	WorkflowIndexName = "workflow_items"
)

type WorkflowDocument struct {
	workflow.WorkflowItem
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexWorkflows(items []workflow.WorkflowItem, s *session.Session) error {
	docs := make([]WorkflowDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, WorkflowDocument{WorkflowItem: item})
	}

	if err := saveWorkflowDocuments(docs, s); err != nil {
		return err
	}
	return nil
}

func saveWorkflowDocuments(docs []WorkflowDocument, s *session.Session) BatchActionError {
	errs := BatchActionError{}

	for _, doc := range docs {
		if err := es.IndexFunc(WorkflowIndexName, doc.ID, doc, s); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index workflow item %d %s %s\n", doc.ID, doc.Title, err)
		} else {
			logrus.Infof("index workflow item %d %s successfully\n", doc.ID, doc.Title)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
