package sessions

import (
	"net/http"
	"time"

	"flowdesk/authority"
	"flowdesk/bizerror"
	"flowdesk/session"

	"github.com/gin-gonic/gin"
)

func RegisterSessionHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/session", middleWares...)
	g.GET("", DetailSessionSecurityContext)
}

// DetailSessionSecurityContext returns the current session and renews its
// capability snapshot without extending the absolute expiration.
func DetailSessionSecurityContext(c *gin.Context) {
	sec := session.ExtractSessionFromGinContext(c)

	now := time.Now()
	ttl := session.TokenExpiration - now.Sub(sec.SigningTime)
	if ttl <= 0 {
		panic(bizerror.ErrUnauthenticated)
	}

	securityContext := session.Session{Token: sec.Token, Identity: sec.Identity,
		Capabilities: authority.CapabilitiesOfRole(sec.Identity.Role), SigningTime: sec.SigningTime}
	session.TokenCache.Set(sec.Token, &securityContext, ttl)
	c.JSON(http.StatusOK, &securityContext)
}
