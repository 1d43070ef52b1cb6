package respond

import "time"

// UploadRespond 上传受理结果。task_id 可用于排查后台摄取进度
type UploadRespond struct {
	StorageID string `json:"storage_id"`
	EntryID   string `json:"entry_id"` // placeholder 条目 ID
	TaskID    int64  `json:"task_id"`
}

// FileItemRespond 按文件聚合后的单项。status 为 deleting 时表示
// 墓碑已落、后台清扫尚未完成
type FileItemRespond struct {
	EntryID         string    `json:"entry_id"`
	GroupKey        string    `json:"group_key"`
	DisplayName     string    `json:"display_name"`
	Filename        string    `json:"filename"`
	Category        string    `json:"category,omitempty"`
	StorageID       string    `json:"storage_id,omitempty"`
	KnowledgeBaseID string    `json:"kb_uuid,omitempty"`
	SourceType      string    `json:"source_type,omitempty"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	TotalChunks     int       `json:"total_chunks"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListFilesRespond 文件列表
type ListFilesRespond struct {
	Files     []FileItemRespond `json:"files"`
	Truncated bool              `json:"truncated"` // 命中扫描上限，可能还有更多文件
}

// QueryChunkRespond 单条命中
type QueryChunkRespond struct {
	EntryID string  `json:"entry_id"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// QueryRespond 检索结果。is_relevant 为 false 时 grounding_text 为空，
// message 携带兜底提示
type QueryRespond struct {
	IsRelevant    bool                `json:"is_relevant"`
	GroundingText string              `json:"grounding_text,omitempty"`
	Chunks        []QueryChunkRespond `json:"chunks,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// NotificationRespond 摄取通知
type NotificationRespond struct {
	NotificationID string    `json:"notification_id"`
	Kind           string    `json:"kind"`
	FileName       string    `json:"file_name,omitempty"`
	Message        string    `json:"message,omitempty"`
	Status         int8      `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageRespond 按类型汇总的组织用量
type UsageRespond struct {
	Totals map[string]int64 `json:"totals"`
}
