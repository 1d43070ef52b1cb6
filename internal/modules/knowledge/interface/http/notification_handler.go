package http

import (
	"strconv"

	kbRequest "EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/service"
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知与用量 HTTP Handler
type NotificationHandler struct {
	notifSvc *service.NotificationService
	usageSvc *service.UsageService
}

func NewNotificationHandler(notifSvc *service.NotificationService, usageSvc *service.UsageService) *NotificationHandler {
	return &NotificationHandler{notifSvc: notifSvc, usageSvc: usageSvc}
}

// List 列出组织的通知，最新在前
//
// 路由: GET /kb/notification/list?limit=50
func (h *NotificationHandler) List(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	data, err := h.notifSvc.List(c.Request.Context(), orgID, limit)
	back.Result(c, data, err)
}

// MarkRead 标记通知为已读
//
// 路由: POST /kb/notification/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req kbRequest.MarkNotificationReadRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	back.Result(c, nil, h.notifSvc.MarkRead(c.Request.Context(), orgID, req.NotificationID))
}

// Usage 按计量类别汇总组织用量
//
// 路由: GET /kb/usage
func (h *NotificationHandler) Usage(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.usageSvc.Totals(c.Request.Context(), orgID)
	back.Result(c, data, err)
}
