package indices

import (
	"net/http"
	"time"

	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/session"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

var (
	PathIndexRequests        = "/v1/index-requests"
	PathPendingIndexRecovery = "/v1/index-log-recoveries"

	indexLogRecoveryLimiter = rate.NewLimiter(rate.Every(10*time.Second), 1)
)

func RegisterIndicesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathIndexRequests, middleWares...)
	g.POST("", handleIndexRequest)

	rec := r.Group(PathPendingIndexRecovery, middleWares...)
	rec.POST("", handleIndexLogRecovery)
}

func handleIndexRequest(c *gin.Context) {
	success, err := ScheduleNewSyncRunFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"result": success})
}

func handleIndexLogRecovery(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	if !s.HasAnyRole(authority.RoleAdmin) {
		panic(bizerror.ErrForbidden)
	}

	if !indexLogRecoveryLimiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"result": false})
		return
	}

	if err := IndexlogRecoveryRoutineFunc(s); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"result": true})
}
