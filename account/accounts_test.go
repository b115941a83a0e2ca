package account_test

import (
	"context"
	"os"

	"flowdesk/account"
	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/persistence"
	"flowdesk/session"
	"flowdesk/testinfra"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("userManage", func() {
	var (
		testDatabase *testinfra.TestDatabase
	)
	BeforeEach(func() {
		testDatabase = testinfra.StartMysqlTestDatabase("flowdesk")
		persistence.ActiveDataSourceManager = testDatabase.DS
		Expect(testDatabase.DS.GormDB(context.TODO()).AutoMigrate(&account.User{}, &audit.AuditLog{}).Error).To(BeNil())
	})
	AfterEach(func() {
		testinfra.StopMysqlTestDatabase(testDatabase)
	})

	Describe("VerifySecret", func() {
		It("should verify hashed secrets", func() {
			hash := account.HashSecret("123456")
			Expect(hash).ToNot(Equal("123456"))
			Expect(account.VerifySecret(hash, "123456")).To(BeTrue())
			Expect(account.VerifySecret(hash, "654321")).To(BeFalse())

			// same input, distinct salted hashes
			Expect(account.HashSecret("123456")).ToNot(Equal(hash))
		})
	})

	Describe("DefaultSecurityConfiguration", func() {
		It("should create the initial admin account once", func() {
			Expect(os.Unsetenv("INITIAL_ADMIN_PASSWORD")).To(BeNil())
			Expect(account.DefaultSecurityConfiguration()).To(BeNil())

			admin := account.User{}
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Model(&account.User{}).Where(&account.User{ID: 1}).First(&admin).Error).To(BeNil())
			Expect(admin.Name).To(Equal("admin"))
			Expect(admin.Role).To(Equal(authority.RoleAdmin))
			Expect(admin.Enabled).To(BeTrue())
			Expect(account.VerifySecret(admin.Secret, "admin123")).To(BeTrue())

			// second run keeps the existing account
			Expect(account.DefaultSecurityConfiguration()).To(BeNil())
			var count uint64
			Expect(db.Model(&account.User{}).Count(&count).Error).To(BeNil())
			Expect(count).To(Equal(uint64(1)))
		})
	})

	Describe("CreateUser", func() {
		It("should be blocked for non admins", func() {
			for _, role := range []authority.Role{authority.RoleManager, authority.RoleReviewer, authority.RoleViewer} {
				u, err := account.CreateUser(&account.UserCreation{Name: "test", Secret: "123456", Role: "VIEWER"},
					testinfra.BuildSession(10, role))
				Expect(err).To(Equal(bizerror.ErrForbidden))
				Expect(u).To(BeNil())
			}
		})

		It("should reject unknown roles", func() {
			u, err := account.CreateUser(&account.UserCreation{Name: "test", Secret: "123456", Role: "SUPERUSER"},
				testinfra.BuildSession(1, authority.RoleAdmin))
			Expect(err).To(Equal(bizerror.ErrUnknownRole))
			Expect(u).To(BeNil())
		})

		It("should create users with hashed secret and an audit entry", func() {
			admin := testinfra.BuildSession(1, authority.RoleAdmin)
			u, err := account.CreateUser(&account.UserCreation{Name: "test", Secret: "123456", Role: "reviewer"}, admin)
			Expect(err).To(BeNil())
			Expect(u.Name).To(Equal("test"))
			Expect(u.Role).To(Equal(authority.RoleReviewer))
			Expect(u.Enabled).To(BeTrue())

			db := testDatabase.DS.GormDB(context.TODO())
			stored := account.User{}
			Expect(db.Model(&account.User{}).Where(&account.User{ID: u.ID}).First(&stored).Error).To(BeNil())
			Expect(stored.Secret).ToNot(Equal("123456"))
			Expect(account.VerifySecret(stored.Secret, "123456")).To(BeTrue())

			records := []audit.AuditLog{}
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ?", u.ID).Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(1))
			Expect(records[0].Action).To(Equal(audit.ActionUserCreated))
			Expect(records[0].NewValues["role"]).To(Equal("REVIEWER"))
		})
	})

	Describe("QueryUsers", func() {
		It("should be restricted to admins and managers", func() {
			_, err := account.QueryUsers(testinfra.BuildSession(10, authority.RoleViewer))
			Expect(err).To(Equal(bizerror.ErrForbidden))

			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 1, Name: "aaa", Secret: account.HashSecret("123456"),
				Role: authority.RoleAdmin, Enabled: true}).Error).To(BeNil())

			users, err := account.QueryUsers(testinfra.BuildSession(10, authority.RoleManager))
			Expect(err).To(BeNil())
			Expect(len(*users)).To(Equal(1))
			Expect((*users)[0]).To(Equal(account.UserInfo{ID: 1, Name: "aaa", Role: authority.RoleAdmin, Enabled: true}))
		})
	})

	Describe("UpdateUser", func() {
		It("should let users edit their own profile but not role or enabled", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 10, Name: "aaa", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			self := testinfra.BuildSession(10, authority.RoleViewer)
			Expect(account.UpdateUser(10, &account.UserUpdation{Nickname: "Ann"}, self)).To(BeNil())

			stored := account.User{}
			Expect(db.Model(&account.User{}).Where(&account.User{ID: 10}).First(&stored).Error).To(BeNil())
			Expect(stored.Nickname).To(Equal("Ann"))

			Expect(account.UpdateUser(10, &account.UserUpdation{Role: "ADMIN"}, self)).To(Equal(bizerror.ErrForbidden))
			enabled := false
			Expect(account.UpdateUser(10, &account.UserUpdation{Enabled: &enabled}, self)).To(Equal(bizerror.ErrForbidden))
			Expect(account.UpdateUser(11, &account.UserUpdation{Nickname: "x"}, self)).To(Equal(bizerror.ErrForbidden))
		})

		It("should let admins change role and enabled", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 10, Name: "aaa", Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			admin := testinfra.BuildSession(1, authority.RoleAdmin)
			enabled := false
			Expect(account.UpdateUser(10, &account.UserUpdation{Role: "MANAGER", Enabled: &enabled}, admin)).To(BeNil())

			stored := account.User{}
			Expect(db.Model(&account.User{}).Where(&account.User{ID: 10}).First(&stored).Error).To(BeNil())
			Expect(stored.Role).To(Equal(authority.RoleManager))
			Expect(stored.Enabled).To(BeFalse())

			records := []audit.AuditLog{}
			Expect(db.Model(&audit.AuditLog{}).Where("entity_id = ? AND action = ?", 10, audit.ActionUserUpdated).
				Find(&records).Error).To(BeNil())
			Expect(len(records)).To(Equal(1))
			Expect(records[0].OldValues["role"]).To(Equal("VIEWER"))
			Expect(records[0].NewValues["role"]).To(Equal("MANAGER"))
		})
	})

	Describe("UpdateBasicAuthSecret", func() {
		It("should verify the original secret before updating", func() {
			db := testDatabase.DS.GormDB(context.TODO())
			Expect(db.Save(&account.User{ID: 1, Name: "aaa", Secret: account.HashSecret("123456"),
				Role: authority.RoleViewer, Enabled: true}).Error).To(BeNil())

			sec := session.Session{Identity: session.Identity{ID: 1}, Context: context.TODO()}
			Expect(account.UpdateBasicAuthSecret(&account.BasicAuthUpdating{OriginalSecret: "234567", NewSecret: "654321"}, &sec)).
				To(Equal(bizerror.ErrInvalidPassword))
			Expect(account.UpdateBasicAuthSecret(&account.BasicAuthUpdating{OriginalSecret: "123456", NewSecret: "654321"}, &sec)).
				To(BeNil())

			user := account.User{}
			Expect(db.Model(&account.User{}).Where(&account.User{ID: 1}).First(&user).Error).To(BeNil())
			Expect(account.VerifySecret(user.Secret, "654321")).To(BeTrue())
		})
	})

	Describe("DisplayName", func() {
		It("should prefer the nickname", func() {
			Expect(account.User{Name: "test", Nickname: "Test"}.DisplayName()).To(Equal("Test"))
			Expect(account.User{Name: "test"}.DisplayName()).To(Equal("test"))
			Expect(account.UserInfo{Name: "test", Nickname: "Test"}.DisplayName()).To(Equal("Test"))
			Expect(account.UserInfo{Name: "test"}.DisplayName()).To(Equal("test"))
		})
	})
})
