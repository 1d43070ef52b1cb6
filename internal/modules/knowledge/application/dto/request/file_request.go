package request

// ListFilesRequest 按文件聚合列出知识库条目
type ListFilesRequest struct {
	KBUuid   string `json:"kb_uuid" form:"kb_uuid" binding:"required"`
	Category string `json:"category" form:"category"` // 可选，按上传时打的分类过滤
	NumItems int    `json:"num_items" form:"num_items"` // 期望的唯一文件数，默认 100
}

// DeleteFileRequest 删除文件请求。entry_id 为该文件任意一条代表条目
type DeleteFileRequest struct {
	KBUuid  string `json:"kb_uuid" binding:"required"`
	EntryID string `json:"entry_id" binding:"required"`
}

// RetryFileRequest 对 error / ready 状态的文件重新走一遍摄取
type RetryFileRequest struct {
	KBUuid  string `json:"kb_uuid" binding:"required"`
	EntryID string `json:"entry_id" binding:"required"`
}

// QueryRequest 检索请求。conversation_uuid / chatbot_uuid / kb_uuid
// 三者给其一即可，按此顺序解析命名空间
type QueryRequest struct {
	Question         string `json:"question" binding:"required"`
	ConversationUuid string `json:"conversation_uuid,omitempty"`
	ChatbotUuid      string `json:"chatbot_uuid,omitempty"`
	KBUuid           string `json:"kb_uuid,omitempty"`
	Limit            int    `json:"limit,omitempty"` // 返回 chunk 上限，默认 10
}

// MarkNotificationReadRequest 标记通知已读
type MarkNotificationReadRequest struct {
	NotificationID string `json:"notification_id" binding:"required"`
}
