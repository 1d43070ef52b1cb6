package file

import (
	"database/sql"
	"time"
)

// 摄取任务类型
const (
	TaskTypeProcessFile    = "process_file"
	TaskTypeDeleteSweep    = "delete_sweep"
	TaskTypeFinalizeNotify = "finalize_notification"
)

// 任务消费状态
const (
	TaskStatusPending    int8 = 0
	TaskStatusProcessing int8 = 1
	TaskStatusSucceeded  int8 = 2
	TaskStatusFailed     int8 = 3
)

// outbox 发布状态
const (
	PublishStatusPending    int8 = 0
	PublishStatusPublishing int8 = 1
	PublishStatusPublished  int8 = 2
	PublishStatusFailed     int8 = 3
)

// IngestTask 摄取任务 outbox：写库成功即视为入队，由 relay 异步发布到 Kafka
type IngestTask struct {
	Id             int64        `gorm:"column:id;primaryKey;autoIncrement"`
	TaskType       string       `gorm:"column:task_type;type:varchar(40);not null"`
	OrgId          string       `gorm:"column:org_id;type:char(36);not null;index:idx_ingest_task_org"`
	Namespace      string       `gorm:"column:namespace;type:varchar(100);not null"`
	DedupKey       string       `gorm:"column:dedup_key;type:varchar(191);not null;uniqueIndex:uniq_ingest_task_dedup"`
	PayloadJson    string       `gorm:"column:payload_json;type:json"`
	PublishStatus  int8         `gorm:"column:publish_status;type:tinyint;not null;default:0;index:idx_ingest_task_publish"`
	Status         int8         `gorm:"column:status;type:tinyint;not null;default:0;index:idx_ingest_task_status"`
	RetryCount     int          `gorm:"column:retry_count;type:int;not null;default:0"`
	NextRetryAt    sql.NullTime `gorm:"column:next_retry_at;type:datetime;index:idx_ingest_task_next_retry"`
	KafkaTopic     string       `gorm:"column:kafka_topic;type:varchar(100)"`
	KafkaPartition int          `gorm:"column:kafka_partition;type:int;not null;default:0"`
	KafkaOffset    int64        `gorm:"column:kafka_offset;type:bigint;not null;default:0"`
	PublishedAt    sql.NullTime `gorm:"column:published_at;type:datetime"`
	LastError      string       `gorm:"column:last_error;type:varchar(255)"`
	CreatedAt      time.Time    `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt      time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (IngestTask) TableName() string { return "kb_ingest_task" }

// BlobObject 上传文件的原始字节，摄取时由 worker 读取
type BlobObject struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StorageId string    `gorm:"column:storage_id;type:char(36);not null;uniqueIndex:uniq_blob_storage"`
	OrgId     string    `gorm:"column:org_id;type:char(36);not null;index:idx_blob_org"`
	Filename  string    `gorm:"column:filename;type:varchar(255);not null"`
	MimeType  string    `gorm:"column:mime_type;type:varchar(100);not null"`
	SizeBytes int64     `gorm:"column:size_bytes;type:bigint;not null"`
	Data      []byte    `gorm:"column:data;type:longblob"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (BlobObject) TableName() string { return "kb_blob_object" }

// 墓碑状态
const (
	TombstoneStatusPending int8 = 0
	TombstoneStatusSwept   int8 = 1
)

// FileTombstone 删除请求先落墓碑，检索立即排除，sweeper 异步清理索引条目
type FileTombstone struct {
	Id          int64        `gorm:"column:id;primaryKey;autoIncrement"`
	OrgId       string       `gorm:"column:org_id;type:char(36);not null;index:idx_tombstone_org"`
	Namespace   string       `gorm:"column:namespace;type:varchar(100);not null;uniqueIndex:uniq_tombstone_group"`
	GroupKey    string       `gorm:"column:group_key;type:varchar(191);not null;uniqueIndex:uniq_tombstone_group"`
	DisplayName string       `gorm:"column:display_name;type:varchar(255)"`
	StorageId   string       `gorm:"column:storage_id;type:char(36)"`
	RequestedBy string       `gorm:"column:requested_by;type:char(36)"`
	SweepPasses int          `gorm:"column:sweep_passes;type:int;not null;default:0"`
	Status      int8         `gorm:"column:status;type:tinyint;not null;default:0;index:idx_tombstone_status"`
	NextSweepAt sql.NullTime `gorm:"column:next_sweep_at;type:datetime"`
	CreatedAt   time.Time    `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (FileTombstone) TableName() string { return "kb_file_tombstone" }

// 通知类型与状态
const (
	NotificationKindFileProcessing = "file_processing"
	NotificationKindFileReady      = "file_ready"
	NotificationKindFileError      = "file_error"
	NotificationKindFileDeleted    = "file_deleted"

	NotificationStatusPending   int8 = 0
	NotificationStatusDelivered int8 = 1
	NotificationStatusRead      int8 = 2
)

// Notification 摄取完成通知，未送达的由 finalize watchdog 周期补投
type Notification struct {
	Id             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	NotificationId string     `gorm:"column:notification_id;type:char(36);not null;uniqueIndex:uniq_notification_id"`
	OrgId          string     `gorm:"column:org_id;type:char(36);not null;index:idx_notification_org"`
	Kind           string     `gorm:"column:kind;type:varchar(30);not null"`
	FileName       string     `gorm:"column:file_name;type:varchar(255)"`
	Namespace      string     `gorm:"column:namespace;type:varchar(100)"`
	Message        string     `gorm:"column:message;type:varchar(512)"`
	Status         int8       `gorm:"column:status;type:tinyint;not null;default:0;index:idx_notification_status"`
	Attempts       int        `gorm:"column:attempts;type:int;not null;default:0"`
	DeliveredAt    *time.Time `gorm:"column:delivered_at;type:datetime"`
	ReadAt         *time.Time `gorm:"column:read_at;type:datetime"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:datetime;not null"`
}

func (Notification) TableName() string { return "kb_notification" }

// 计费用量类型
const (
	UsagePdfParsePages       = "pdf_parse_pages"
	UsagePdfParseTextLength  = "pdf_parse_text_length_fallback"
	UsageEmbeddingTokens     = "embedding_tokens"
	UsageStorageBytes        = "storage_bytes"
	UsageVectorStorageBytes  = "vector_storage_bytes"
)

// UsageRecord 按组织累计的用量流水
type UsageRecord struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OrgId        string    `gorm:"column:org_id;type:char(36);not null;index:idx_usage_org"`
	Kind         string    `gorm:"column:kind;type:varchar(40);not null;index:idx_usage_kind"`
	Amount       int64     `gorm:"column:amount;type:bigint;not null"`
	Unit         string    `gorm:"column:unit;type:varchar(20);not null"`
	DedupKey     string    `gorm:"column:dedup_key;type:varchar(191);uniqueIndex:uniq_usage_dedup"`
	MetadataJson string    `gorm:"column:metadata_json;type:json"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime;not null"`
}

func (UsageRecord) TableName() string { return "kb_usage_record" }
