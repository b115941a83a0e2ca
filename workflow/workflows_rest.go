package workflow

import (
	"errors"
	"net/http"

	"flowdesk/bizerror"
	"flowdesk/misc"
	"flowdesk/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

func RegisterWorkflowsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/workflows", middleWares...)
	g.GET("", handleQueryWorkflows)
	g.POST("", handleCreateWorkflow)
	g.GET(":id", handleDetailWorkflow)
	g.PUT(":id", handleUpdateWorkflow)
	g.DELETE(":id", handleDeleteWorkflow)
	g.POST(":id/transitions", handleTransitionWorkflow)
}

func parseIdParam(c *gin.Context) types.ID {
	parsedId, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}
	return parsedId
}

func handleQueryWorkflows(c *gin.Context) {
	query := WorkflowQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	items, total, err := QueryWorkflowsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, &misc.PagedBody{List: items, Total: total})
}

func handleCreateWorkflow(c *gin.Context) {
	creation := WorkflowCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := CreateWorkflowFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, detail)
}

func handleDetailWorkflow(c *gin.Context) {
	detail, err := DetailWorkflowFunc(parseIdParam(c), session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleUpdateWorkflow(c *gin.Context) {
	updating := WorkflowUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := UpdateWorkflowFunc(parseIdParam(c), &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleDeleteWorkflow(c *gin.Context) {
	if err := DeleteWorkflowFunc(parseIdParam(c), session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleTransitionWorkflow(c *gin.Context) {
	req := TransitionRequest{}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	detail, err := TransitionWorkflowFunc(parseIdParam(c), &req, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}
