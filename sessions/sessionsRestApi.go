package sessions

import (
	"net/http"
	"time"

	"flowdesk/account"
	"flowdesk/audit"
	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/misc"
	"flowdesk/persistence"
	"flowdesk/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

func RegisterSessionsHandler(r *gin.Engine) {
	g := r.Group("/v1/sessions")
	g.POST("", SimpleLoginHandler)
	g.DELETE("", SimpleLogoutHandler)
}

func SimpleLogoutHandler(c *gin.Context) {
	token := session.ExtractToken(c)
	if token != "" {
		session.TokenCache.Delete(token)
	}
	c.SetCookie(session.KeySecToken, "", -1, "/", "", false, false)
	c.AbortWithStatus(http.StatusNoContent)
}

func SimpleLoginHandler(c *gin.Context) {
	login := session.LoginRequest{}
	if err := c.ShouldBindBodyWith(&login, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: err.Error()})
		return
	}

	db := persistence.ActiveDataSourceManager.GormDB(c.Request.Context())
	user := account.User{}
	if err := db.Where(&account.User{Name: login.Name}).First(&user).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			panic(bizerror.ErrUnauthenticated)
		}
		c.JSON(http.StatusInternalServerError, &misc.ErrorBody{Code: "common.internal_server_error", Message: err.Error()})
		return
	}
	if !account.VerifySecret(user.Secret, login.Password) {
		panic(bizerror.ErrUnauthenticated)
	}
	if !user.Enabled {
		panic(bizerror.ErrAccountDisabled)
	}

	token := uuid.New().String()
	securityContext := session.Session{
		Token: token,
		Identity: session.Identity{
			ID: user.ID, Name: user.Name, Nickname: user.Nickname, Role: user.Role,
		},
		Capabilities: authority.CapabilitiesOfRole(user.Role),
		SigningTime:  time.Now(),
	}
	session.TokenCache.Set(token, &securityContext, cache.DefaultExpiration)

	recordLogin(db, &securityContext)

	c.SetCookie(session.KeySecToken, token, int(session.TokenExpiration/time.Second), "/", "", false, false)
	c.JSON(http.StatusOK, &securityContext)
}

func recordLogin(db *gorm.DB, s *session.Session) {
	var record *audit.AuditLog
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = audit.Append(tx, audit.ActionUserLogin, account.EntityTypeUser, s.Identity.ID,
			"user logged in", nil, nil, &s.Identity)
		return err
	})
	if err != nil {
		// login still succeeds when the audit write fails
		logrus.Warnln("failed to record login of user", s.Identity.ID, err)
		return
	}
	if audit.InvokeHandlersFunc != nil {
		audit.InvokeHandlersFunc(record)
	}
}
