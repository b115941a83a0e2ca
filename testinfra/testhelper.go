package testinfra

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"time"

	"flowdesk/authority"
	"flowdesk/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// ExecuteRequest runs the request through the router and drains the response body.
func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	resp := w.Result()
	defer resp.Body.Close()
	bodyBytes, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(bodyBytes), resp
}

// BuildSession builds a signed-in session for service level tests.
func BuildSession(uid types.ID, role authority.Role) *session.Session {
	return &session.Session{
		Identity:     session.Identity{ID: uid, Name: "user" + uid.String(), Role: role},
		Capabilities: authority.CapabilitiesOfRole(role),
		SigningTime:  time.Now(),
		Context:      context.Background(),
	}
}
