package account

import (
	"os"

	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/idgen"
	"flowdesk/persistence"
	"flowdesk/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
	"golang.org/x/crypto/bcrypt"
)

var (
	userIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateUserFunc            = CreateUser
	QueryUsersFunc            = QueryUsers
	UpdateUserFunc            = UpdateUser
	UpdateBasicAuthSecretFunc = UpdateBasicAuthSecret
	FindUserFunc              = FindUser
)

func HashSecret(raw string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

func VerifySecret(hashed, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(raw)) == nil
}

// DefaultSecurityConfiguration bootstrap the initial admin account
func DefaultSecurityConfiguration() error {
	db := persistence.ActiveDataSourceManager.GormDB(nil)
	return db.Transaction(func(tx *gorm.DB) error {
		admin := User{}
		err := tx.Model(&User{}).Where(&User{ID: 1}).First(&admin).Error
		if err == nil {
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}

		initialAdminPassword := os.Getenv("INITIAL_ADMIN_PASSWORD")
		if initialAdminPassword == "" {
			initialAdminPassword = "admin123"
		}
		return tx.Save(&User{ID: 1, Name: "admin", Secret: HashSecret(initialAdminPassword),
			Role: authority.RoleAdmin, Enabled: true}).Error
	})
}

func CreateUser(c *UserCreation, s *session.Session) (*UserInfo, error) {
	if !s.HasAnyRole(authority.RoleAdmin) {
		return nil, bizerror.ErrForbidden
	}
	role, err := authority.ParseRole(c.Role)
	if err != nil {
		return nil, err
	}

	user := User{ID: idgen.NextID(userIdWorker), Name: c.Name, Email: c.Email,
		FirstName: c.FirstName, LastName: c.LastName, Nickname: c.Nickname,
		Secret: HashSecret(c.Secret), Role: role, Enabled: true}

	var record *audit.AuditLog
	err1 := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		record, err = audit.Append(tx, audit.ActionUserCreated, EntityTypeUser, user.ID,
			"user created", nil, audit.ChangedValues{"name": user.Name, "role": string(user.Role)}, &s.Identity)
		return err
	})
	if err1 != nil {
		return nil, err1
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}

	info := user.Info()
	return &info, nil
}

const EntityTypeUser = "User"

func QueryUsers(s *session.Session) (*[]UserInfo, error) {
	if !s.HasAnyRole(authority.RoleAdmin, authority.RoleManager) {
		return nil, bizerror.ErrForbidden
	}
	var users []UserInfo
	if err := persistence.ActiveDataSourceManager.GormDB(s.Context).Model(&User{}).Scan(&users).Error; err != nil {
		return nil, err
	}
	return &users, nil
}

func FindUser(id types.ID) (*UserInfo, error) {
	user := User{}
	if err := persistence.ActiveDataSourceManager.GormDB(nil).Where(&User{ID: id}).First(&user).Error; err != nil {
		return nil, err
	}
	info := user.Info()
	return &info, nil
}

func UpdateUser(userId types.ID, u *UserUpdation, s *session.Session) error {
	isAdmin := s.HasAnyRole(authority.RoleAdmin)
	if !isAdmin && userId != s.Identity.ID {
		return bizerror.ErrForbidden
	}
	// role and enabled changes are reserved to admins
	if !isAdmin && (u.Role != "" || u.Enabled != nil) {
		return bizerror.ErrForbidden
	}

	var record *audit.AuditLog
	err1 := persistence.ActiveDataSourceManager.GormDB(s.Context).Transaction(func(tx *gorm.DB) error {
		user := User{ID: userId}
		if err := tx.Where(&user).First(&user).Error; err != nil {
			return err
		}

		changes := map[string]interface{}{
			"email":      u.Email,
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"nickname":   u.Nickname,
		}
		oldValues := audit.ChangedValues{"email": user.Email, "nickname": user.Nickname}
		newValues := audit.ChangedValues{"email": u.Email, "nickname": u.Nickname}
		if u.Role != "" {
			role, err := authority.ParseRole(u.Role)
			if err != nil {
				return err
			}
			changes["role"] = role
			oldValues["role"] = string(user.Role)
			newValues["role"] = string(role)
		}
		if u.Enabled != nil {
			changes["enabled"] = *u.Enabled
		}

		if err := tx.Model(&User{}).Where(&User{ID: userId}).Updates(changes).Error; err != nil {
			return err
		}

		var err error
		record, err = audit.Append(tx, audit.ActionUserUpdated, EntityTypeUser, userId,
			"user updated", oldValues, newValues, &s.Identity)
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

func UpdateBasicAuthSecret(u *BasicAuthUpdating, s *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	user := User{}
	if err := db.Model(&User{}).Where(&User{ID: s.Identity.ID}).First(&user).Error; err != nil {
		return err
	}
	if !VerifySecret(user.Secret, u.OriginalSecret) {
		return bizerror.ErrInvalidPassword
	}

	return db.Model(&User{}).Where(&User{ID: s.Identity.ID}).
		Updates(map[string]interface{}{"secret": HashSecret(u.NewSecret)}).Error
}
