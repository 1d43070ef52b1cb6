package handler

import (
	"EchoDesk/internal/modules/user/application/dto/request"
	"EchoDesk/internal/modules/user/application/service"
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	svc service.AccountService
}

func NewAccountHandler(svc service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req request.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.Register(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	data, err := h.svc.Login(c.Request.Context(), req)
	back.Result(c, data, err)
}

func (h *AccountHandler) Logout(c *gin.Context) {
	back.Result(c, nil, h.svc.Logout(c.Request.Context(), c.GetString("uuid")))
}
