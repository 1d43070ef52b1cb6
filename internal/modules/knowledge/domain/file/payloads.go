package file

// ProcessFilePayload process_file 任务载荷
type ProcessFilePayload struct {
	StorageID   string `json:"storage_id"`
	EntryID     string `json:"entry_id"` // placeholder 条目
	Namespace   string `json:"namespace"`
	KBUuid      string `json:"kb_uuid"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mime_type"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category,omitempty"`
	SourceType  string `json:"source_type"`
	UploadedBy  string `json:"uploaded_by"`
}

// DeleteSweepPayload delete_sweep 任务载荷。group_key 为空表示清掉整个命名空间
type DeleteSweepPayload struct {
	Namespace string `json:"namespace"`
	GroupKey  string `json:"group_key,omitempty"`
}

// FinalizeNotifyPayload finalize_notification 任务载荷
type FinalizeNotifyPayload struct {
	NotificationID string `json:"notification_id"`
}
