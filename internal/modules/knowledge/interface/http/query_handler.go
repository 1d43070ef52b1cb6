package http

import (
	kbRequest "EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/service"
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// QueryHandler 知识检索 HTTP Handler
type QueryHandler struct {
	retrieveSvc service.RetrieveService
}

func NewQueryHandler(retrieveSvc service.RetrieveService) *QueryHandler {
	return &QueryHandler{retrieveSvc: retrieveSvc}
}

// Query 在知识库中检索与问题相关的片段
//
// 路由: POST /kb/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req kbRequest.QueryRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.retrieveSvc.Query(c.Request.Context(), orgID, req)
	back.Result(c, data, err)
}
