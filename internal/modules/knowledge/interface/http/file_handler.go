package http

import (
	"io"
	"strings"

	kbRequest "EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/service"
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/gin-gonic/gin"
)

// 单文件上传上限 32MB，multipart 表单整体由 gin 默认限制兜底
const maxUploadBytes = 32 << 20

// FileHandler 知识库文件 HTTP Handler
type FileHandler struct {
	fileSvc service.FileService
}

func NewFileHandler(fileSvc service.FileService) *FileHandler {
	return &FileHandler{fileSvc: fileSvc}
}

// Upload 上传文件并触发异步摄取
//
// 路由: POST /kb/file/upload (multipart/form-data)
// 表单字段: file, kb_uuid, display_name, category
func (h *FileHandler) Upload(c *gin.Context) {
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	userID := strings.TrimSpace(c.GetString("uuid"))

	fh, err := c.FormFile("file")
	if err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	if fh.Size > maxUploadBytes {
		back.Error(c, xerr.BadRequest, "文件过大")
		return
	}
	f, err := fh.Open()
	if err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.InternalServerError, "读取文件失败")
		return
	}
	if len(data) > maxUploadBytes {
		back.Error(c, xerr.BadRequest, "文件过大")
		return
	}

	cmd := service.UploadCommand{
		KBUuid:      strings.TrimSpace(c.PostForm("kb_uuid")),
		DisplayName: strings.TrimSpace(c.PostForm("display_name")),
		Category:    strings.TrimSpace(c.PostForm("category")),
		Filename:    fh.Filename,
		MimeType:    fh.Header.Get("Content-Type"),
		Data:        data,
	}
	resp, err := h.fileSvc.Upload(c.Request.Context(), orgID, userID, cmd)
	back.Result(c, resp, err)
}

// List 列出知识库中的文件（按文件分组聚合）
//
// 路由: POST /kb/file/list
func (h *FileHandler) List(c *gin.Context) {
	var req kbRequest.ListFilesRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	data, err := h.fileSvc.List(c.Request.Context(), orgID, req)
	back.Result(c, data, err)
}

// Delete 删除文件（墓碑 + 后台清扫）
//
// 路由: POST /kb/file/delete
func (h *FileHandler) Delete(c *gin.Context) {
	var req kbRequest.DeleteFileRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	userID := strings.TrimSpace(c.GetString("uuid"))
	back.Result(c, nil, h.fileSvc.DeleteFile(c.Request.Context(), orgID, userID, req))
}

// Retry 重新处理失败的文件
//
// 路由: POST /kb/file/retry
func (h *FileHandler) Retry(c *gin.Context) {
	var req kbRequest.RetryFileRequest
	if err := c.BindJSON(&req); err != nil {
		zlog.Error(err.Error())
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}
	orgID, ok := orgFromContext(c)
	if !ok {
		return
	}
	userID := strings.TrimSpace(c.GetString("uuid"))
	back.Result(c, nil, h.fileSvc.RetryFileProcessing(c.Request.Context(), orgID, userID, req))
}
