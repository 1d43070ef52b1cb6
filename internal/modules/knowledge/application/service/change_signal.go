package service

import (
	"time"

	"EchoDesk/pkg/ws"
)

// 变更类型，推给仪表盘驱动列表刷新
const (
	ChangeFileUploaded  = "file_uploaded"
	ChangeFileReady     = "file_ready"
	ChangeFileError     = "file_error"
	ChangeFileDeleting  = "file_deleting"
	ChangeFileDeleted   = "file_deleted"
	ChangeSweepProgress = "sweep_progress"
)

type changeEvent struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace,omitempty"`
	GroupKey  string `json:"group_key,omitempty"`
	At        int64  `json:"at"`
}

// ChangeNotifier 知识库变更信号。投递失败不影响主流程，
// 仪表盘断线后重新拉全量即可
type ChangeNotifier struct {
	hub *ws.Hub
}

func NewChangeNotifier(hub *ws.Hub) *ChangeNotifier {
	return &ChangeNotifier{hub: hub}
}

func (n *ChangeNotifier) TrackChange(orgID, namespace, groupKey, changeType string) {
	if n == nil || n.hub == nil {
		return
	}
	_ = n.hub.BroadcastJSON(orgID, changeEvent{
		Type:      changeType,
		Namespace: namespace,
		GroupKey:  groupKey,
		At:        time.Now().UnixMilli(),
	})
}
