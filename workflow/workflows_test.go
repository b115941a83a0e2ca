package workflow_test

import (
	"context"
	"sync"

	"flowdesk/account"
	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/flow"
	"flowdesk/persistence"
	"flowdesk/session"
	"flowdesk/testinfra"
	"flowdesk/workflow"

	"github.com/jinzhu/gorm"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("workflowManage", func() {
	var (
		testDatabase *testinfra.TestDatabase
	)
	BeforeEach(func() {
		testDatabase = testinfra.StartMysqlTestDatabase("flowdesk")
		persistence.ActiveDataSourceManager = testDatabase.DS
		Expect(testDatabase.DS.GormDB(context.TODO()).AutoMigrate(
			&account.User{}, &workflow.WorkflowItem{}, &audit.AuditLog{}).Error).To(BeNil())
	})
	AfterEach(func() {
		testinfra.StopMysqlTestDatabase(testDatabase)
	})

	Describe("CreateWorkflow", func() {
		It("should be blocked for reviewers and viewers", func() {
			for _, role := range []authority.Role{authority.RoleReviewer, authority.RoleViewer} {
				detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "test"}, testinfra.BuildSession(10, role))
				Expect(err).To(Equal(bizerror.ErrForbidden))
				Expect(detail).To(BeNil())
			}
		})

		It("should create workflow item with initial state and an audit entry", func() {
			s := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "expense report", Priority: workflow.PriorityHigh}, s)
			Expect(err).To(BeNil())
			Expect(detail.ID).ToNot(BeZero())
			Expect(detail.State).To(Equal(flow.StateCreated))
			Expect(detail.Priority).To(Equal(workflow.PriorityHigh))
			Expect(detail.CreatorID).To(Equal(s.Identity.ID))
			Expect(detail.AllowedActions).To(Equal([]flow.Action{flow.ActionSubmit}))

			records := []audit.AuditLog{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ?", detail.ID).Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(1))
			Expect(records[0].Action).To(Equal(audit.ActionWorkflowCreated))
			Expect(records[0].EntityType).To(Equal(workflow.EntityTypeWorkflowItem))
			Expect(records[0].PerformedBy).To(Equal(s.Identity.ID))
		})

		It("should default priority to MEDIUM and resolve the assignee", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 20, Name: "bob", Nickname: "Bob", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t", AssigneeID: 20},
				testinfra.BuildSession(10, authority.RoleAdmin))
			Expect(err).To(BeNil())
			Expect(detail.Priority).To(Equal(workflow.PriorityMedium))
			Expect(detail.AssigneeName).To(Equal("Bob"))
		})
	})

	Describe("DetailWorkflow and QueryWorkflows", func() {
		It("should hide unassigned items from viewers and reviewers", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 20, Name: "bob", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			assigned, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "assigned", AssigneeID: 20}, manager)
			Expect(err).To(BeNil())
			other, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "other"}, manager)
			Expect(err).To(BeNil())

			viewer := testinfra.BuildSession(20, authority.RoleViewer)
			detail, err := workflow.DetailWorkflow(assigned.ID, viewer)
			Expect(err).To(BeNil())
			Expect(detail.Title).To(Equal("assigned"))

			_, err = workflow.DetailWorkflow(other.ID, viewer)
			Expect(err).To(Equal(bizerror.ErrForbidden))

			items, total, err := workflow.QueryWorkflows(&workflow.WorkflowQuery{}, viewer)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(uint64(1)))
			Expect(items[0].Title).To(Equal("assigned"))

			items, total, err = workflow.QueryWorkflows(&workflow.WorkflowQuery{}, manager)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(uint64(2)))
			Expect(len(items)).To(Equal(2))
		})

		It("should filter by state, name and priority", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			_, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "first item", Priority: workflow.PriorityHigh}, manager)
			Expect(err).To(BeNil())
			_, err = workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "second item"}, manager)
			Expect(err).To(BeNil())

			items, total, err := workflow.QueryWorkflows(&workflow.WorkflowQuery{Name: "first"}, manager)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(uint64(1)))
			Expect(items[0].Title).To(Equal("first item"))

			_, total, err = workflow.QueryWorkflows(&workflow.WorkflowQuery{Priority: workflow.PriorityHigh}, manager)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(uint64(1)))

			_, total, err = workflow.QueryWorkflows(&workflow.WorkflowQuery{State: flow.StateReviewed}, manager)
			Expect(err).To(BeNil())
			Expect(total).To(BeZero())
		})

		It("should respond record not found for a missing id", func() {
			_, err := workflow.DetailWorkflow(404404, testinfra.BuildSession(10, authority.RoleAdmin))
			Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
		})
	})

	Describe("UpdateWorkflow", func() {
		It("should be blocked for reviewers and viewers", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())

			_, err = workflow.UpdateWorkflow(detail.ID, &workflow.WorkflowUpdating{Title: "renamed"},
				testinfra.BuildSession(20, authority.RoleViewer))
			Expect(err).To(Equal(bizerror.ErrForbidden))
		})

		It("should update fields and append an audit entry with old and new values", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "before"}, manager)
			Expect(err).To(BeNil())

			updated, err := workflow.UpdateWorkflow(detail.ID,
				&workflow.WorkflowUpdating{Title: "after", Priority: workflow.PriorityCritical}, manager)
			Expect(err).To(BeNil())
			Expect(updated.Title).To(Equal("after"))
			Expect(updated.Priority).To(Equal(workflow.PriorityCritical))
			Expect(updated.State).To(Equal(flow.StateCreated))

			records := []audit.AuditLog{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", detail.ID, audit.ActionWorkflowUpdated).
				Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(1))
			Expect(records[0].OldValues["title"]).To(Equal("before"))
			Expect(records[0].NewValues["title"]).To(Equal("after"))
		})

		It("should refuse edits once the state is terminal", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail := buildApprovedWorkflow(manager)

			_, err := workflow.UpdateWorkflow(detail.ID, &workflow.WorkflowUpdating{Title: "renamed"}, manager)
			Expect(err).To(Equal(bizerror.ErrStateTerminal))
		})
	})

	Describe("DeleteWorkflow", func() {
		It("should be authorized for admins only", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())

			Expect(workflow.DeleteWorkflow(detail.ID, manager)).To(Equal(bizerror.ErrForbidden))
			Expect(workflow.DeleteWorkflow(detail.ID, testinfra.BuildSession(1, authority.RoleAdmin))).To(BeNil())

			_, err = workflow.DetailWorkflow(detail.ID, testinfra.BuildSession(1, authority.RoleAdmin))
			Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())

			records := []audit.AuditLog{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", detail.ID, audit.ActionWorkflowDeleted).
				Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(1))
		})
	})

	Describe("TransitionWorkflow", func() {
		It("should submit, refresh update time and overwrite comments", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())

			updated, err := workflow.TransitionWorkflow(detail.ID,
				&workflow.TransitionRequest{Action: flow.ActionSubmit, Comments: "ready"}, manager)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateReviewed))
			Expect(updated.Comments).To(Equal("ready"))
			Expect(updated.UpdateTime.Time().Before(detail.UpdateTime.Time())).To(BeFalse())
		})

		It("should fail with conflict when the same transition is replayed", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, manager)
			Expect(err).To(BeNil())

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, manager)
			Expect(err).To(Equal(bizerror.ErrInvalidTransition))
		})

		It("should let exactly one of two concurrent decisions win", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			admin := testinfra.BuildSession(1, authority.RoleAdmin)

			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())
			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, manager)
			Expect(err).To(BeNil())

			start := make(chan struct{})
			results := make([]error, 2)
			wg := sync.WaitGroup{}
			wg.Add(2)
			go func() {
				defer wg.Done()
				<-start
				_, results[0] = workflow.TransitionWorkflow(detail.ID,
					&workflow.TransitionRequest{Action: flow.ActionApprove}, manager)
			}()
			go func() {
				defer wg.Done()
				<-start
				_, results[1] = workflow.TransitionWorkflow(detail.ID,
					&workflow.TransitionRequest{Action: flow.ActionReject}, admin)
			}()
			close(start)
			wg.Wait()

			current, err := workflow.DetailWorkflow(detail.ID, manager)
			Expect(err).To(BeNil())
			if results[0] == nil {
				Expect(results[1]).To(Equal(bizerror.ErrInvalidTransition))
				Expect(current.State).To(Equal(flow.StateApproved))
			} else {
				Expect(results[0]).To(Equal(bizerror.ErrInvalidTransition))
				Expect(results[1]).To(BeNil())
				Expect(current.State).To(Equal(flow.StateRejected))
			}

			records := []audit.AuditLog{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", detail.ID, audit.ActionWorkflowTransitioned).
				Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(2))
		})

		It("should not mutate state on failed attempts", func() {
			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t"}, manager)
			Expect(err).To(BeNil())

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: "ARCHIVE"}, manager)
			Expect(err).To(Equal(bizerror.ErrUnknownAction))

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionApprove},
				testinfra.BuildSession(20, authority.RoleViewer))
			Expect(err).To(Equal(bizerror.ErrForbidden))

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionApprove}, manager)
			Expect(err).To(Equal(bizerror.ErrInvalidTransition))

			current, err := workflow.DetailWorkflow(detail.ID, manager)
			Expect(err).To(BeNil())
			Expect(current.State).To(Equal(flow.StateCreated))

			records := []audit.AuditLog{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", detail.ID, audit.ActionWorkflowTransitioned).
				Find(&records).Error).To(BeNil())
			Expect(records).To(BeEmpty())
		})

		It("should let the assignee submit regardless of role", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 20, Name: "bob", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			manager := testinfra.BuildSession(10, authority.RoleManager)
			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t", AssigneeID: 20}, manager)
			Expect(err).To(BeNil())

			updated, err := workflow.TransitionWorkflow(detail.ID,
				&workflow.TransitionRequest{Action: flow.ActionSubmit}, testinfra.BuildSession(20, authority.RoleViewer))
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateReviewed))
		})

		It("should walk the full lifecycle and keep the audit trail ordered", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 30, Name: "vera", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			manager := testinfra.BuildSession(10, authority.RoleManager)
			admin := testinfra.BuildSession(1, authority.RoleAdmin)
			viewer := testinfra.BuildSession(30, authority.RoleViewer)

			detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "t", AssigneeID: 30}, manager)
			Expect(err).To(BeNil())
			Expect(detail.State).To(Equal(flow.StateCreated))

			updated, err := workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, manager)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateReviewed))

			updated, err = workflow.TransitionWorkflow(detail.ID,
				&workflow.TransitionRequest{Action: flow.ActionReject, Comments: "needs revision"}, admin)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateRejected))
			Expect(updated.Comments).To(Equal("needs revision"))

			updated, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionReopen}, viewer)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateReopened))

			updated, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, viewer)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateReviewed))

			updated, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionApprove}, manager)
			Expect(err).To(BeNil())
			Expect(updated.State).To(Equal(flow.StateApproved))
			Expect(updated.AllowedActions).To(BeEmpty())

			_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionReject}, admin)
			Expect(err).To(Equal(bizerror.ErrInvalidTransition))

			records := []audit.AuditLog{}
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", detail.ID, audit.ActionWorkflowTransitioned).
				Order("create_time ASC").Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(5))
			Expect(records[0].Details).To(Equal("SUBMIT"))
			Expect(records[1].Details).To(Equal("REJECT"))
			Expect(records[1].NewValues["comments"]).To(Equal("needs revision"))
			Expect(records[4].Details).To(Equal("APPROVE"))
			for i := 1; i < len(records); i++ {
				Expect(records[i].CreateTime.Time().Before(records[i-1].CreateTime.Time())).To(BeFalse())
			}
		})
	})
})

func buildApprovedWorkflow(manager *session.Session) *workflow.WorkflowDetail {
	detail, err := workflow.CreateWorkflow(&workflow.WorkflowCreation{Title: "approved item"}, manager)
	Expect(err).To(BeNil())
	_, err = workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionSubmit}, manager)
	Expect(err).To(BeNil())
	approved, err := workflow.TransitionWorkflow(detail.ID, &workflow.TransitionRequest{Action: flow.ActionApprove}, manager)
	Expect(err).To(BeNil())
	Expect(approved.State).To(Equal(flow.StateApproved))
	return approved
}
