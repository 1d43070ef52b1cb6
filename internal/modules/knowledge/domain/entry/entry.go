package entry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 条目状态机：placeholder 先以 processing 写入，成功后由携带 ready 状态的
// 分块条目替换，失败则保留一条 error 条目供仪表盘展示
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"

	// StatusDeleting 不落库。列表发现文件组被墓碑覆盖时合成展示
	StatusDeleting = "deleting"
)

// Status 条目状态。error 状态额外携带面向用户的失败原因
type Status interface {
	Kind() string
	// Rank 列表去重时的优先级，ready > error > processing
	Rank() int
}

type Processing struct{}

func (Processing) Kind() string { return StatusProcessing }
func (Processing) Rank() int    { return 1 }

type Ready struct{}

func (Ready) Kind() string { return StatusReady }
func (Ready) Rank() int    { return 3 }

type Failed struct {
	Message string `json:"message"`
}

func (Failed) Kind() string { return StatusError }
func (Failed) Rank() int    { return 2 }

type statusEnvelope struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

func MarshalStatus(s Status) (string, error) {
	if s == nil {
		s = Processing{}
	}
	env := statusEnvelope{Kind: s.Kind()}
	if f, ok := s.(Failed); ok {
		env.Message = f.Message
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Processing{}, nil
	}
	var env statusEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case StatusReady:
		return Ready{}, nil
	case StatusError:
		return Failed{Message: env.Message}, nil
	case StatusProcessing, "":
		return Processing{}, nil
	default:
		return nil, fmt.Errorf("unknown entry status: %s", env.Kind)
	}
}

// Metadata 随条目写入向量库的业务元数据
type Metadata struct {
	StorageID        string `json:"storageId,omitempty"`
	UploadedBy       string `json:"uploadedBy,omitempty"`
	DisplayName      string `json:"displayName,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
	Category         string `json:"category,omitempty"`
	KnowledgeBaseID  string `json:"knowledgeBaseId,omitempty"`
	SourceType       string `json:"sourceType,omitempty"`
	ChunkIndex       int    `json:"chunkIndex"`
	TotalChunks      int    `json:"totalChunks"`
}

// Entry 命名空间索引中的一条记录。一条 ready 记录对应一个分块；
// processing / error 记录为零内容的生命周期标记
type Entry struct {
	ID          string
	Namespace   string
	Key         string
	Title       string
	Content     string
	ContentHash string
	Status      Status
	Metadata    Metadata
	CreatedAt   time.Time
}

// GroupKey 同一逻辑文件的全部条目共享的分组键。
// 优先用存储 ID，老数据回退到展示名+知识库+来源组合
func GroupKey(storageID, displayName, kbID, sourceType string) string {
	storageID = strings.TrimSpace(storageID)
	if storageID != "" {
		return "storage:" + storageID
	}
	return "meta:" + strings.TrimSpace(displayName) + "|" + strings.TrimSpace(kbID) + "|" + strings.TrimSpace(sourceType)
}

// GroupKeyOf 从条目元数据推导分组键
func GroupKeyOf(e Entry) string {
	return GroupKey(e.Metadata.StorageID, e.Metadata.DisplayName, e.Metadata.KnowledgeBaseID, e.Metadata.SourceType)
}

// ChunkKey 分块条目的键。多块时在展示名后追加 "(part i/N)"，单块直接用展示名
func ChunkKey(displayName string, index, total int) string {
	if total > 1 {
		return fmt.Sprintf("%s (part %d/%d)", displayName, index+1, total)
	}
	return displayName
}

// FileSummary 列表接口按文件聚合后的视图
type FileSummary struct {
	EntryID         string
	GroupKey        string
	DisplayName     string
	Filename        string
	Category        string
	StorageID       string
	KnowledgeBaseID string
	SourceType      string
	Status          string
	ErrorMessage    string
	TotalChunks     int
	CreatedAt       time.Time
}
