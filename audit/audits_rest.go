package audit

import (
	"net/http"

	"flowdesk/bizerror"
	"flowdesk/misc"
	"flowdesk/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func RegisterAuditLogsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/audit-logs", middleWares...)
	g.GET("", handleQueryAuditLogs)
}

func handleQueryAuditLogs(c *gin.Context) {
	query := AuditLogQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	records, total, err := QueryAuditLogsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &misc.PagedBody{List: records, Total: total})
}
