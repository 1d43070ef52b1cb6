package http

import (
	"strings"

	kbRequest "EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/service"
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// KnowledgeBaseHandler 知识库管理 HTTP Handler
type KnowledgeBaseHandler struct {
	kbSvc service.KnowledgeBaseService
}

func NewKnowledgeBaseHandler(kbSvc service.KnowledgeBaseService) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{kbSvc: kbSvc}
}

func orgFromContext(c *gin.Context) (string, bool) {
	orgID := strings.TrimSpace(c.GetString("orgId"))
	if orgID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return "", false
	}
	return orgID, true
}

// Create 创建知识库
//
// 路由: POST /kb/create
func (h *KnowledgeBaseHandler) Create(c *gin.Context) {
	var req kbRequest.CreateKnowledgeBaseRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.kbSvc.Create(c.Request.Context(), orgID, req)
	back.Result(c, data, err)
}

// List 列出组织下的知识库
//
// 路由: GET /kb/list
func (h *KnowledgeBaseHandler) List(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.kbSvc.List(c.Request.Context(), orgID)
	back.Result(c, data, err)
}

// Rename 重命名知识库
//
// 路由: POST /kb/rename
func (h *KnowledgeBaseHandler) Rename(c *gin.Context) {
	var req kbRequest.RenameKnowledgeBaseRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	back.Result(c, nil, h.kbSvc.Rename(c.Request.Context(), orgID, req))
}

// Delete 删除知识库（命名空间后台清理）
//
// 路由: POST /kb/delete
func (h *KnowledgeBaseHandler) Delete(c *gin.Context) {
	var req struct {
		Uuid string `json:"uuid" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	back.Result(c, nil, h.kbSvc.Delete(c.Request.Context(), orgID, req.Uuid))
}

// CreateChatbot 创建机器人
//
// 路由: POST /kb/chatbot/create
func (h *KnowledgeBaseHandler) CreateChatbot(c *gin.Context) {
	var req kbRequest.CreateChatbotRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.kbSvc.CreateChatbot(c.Request.Context(), orgID, req)
	back.Result(c, data, err)
}

// ListChatbots 列出机器人
//
// 路由: GET /kb/chatbot/list
func (h *KnowledgeBaseHandler) ListChatbots(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.kbSvc.ListChatbots(c.Request.Context(), orgID)
	back.Result(c, data, err)
}

// CreateConversation 创建会话
//
// 路由: POST /kb/conversation/create
func (h *KnowledgeBaseHandler) CreateConversation(c *gin.Context) {
	var req kbRequest.CreateConversationRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.kbSvc.CreateConversation(c.Request.Context(), orgID, req)
	back.Result(c, data, err)
}
