package kb

import (
	"time"
)

const (
	SourceTypeUploaded = "uploaded"
	SourceTypeScraped  = "scraped"
)

type KnowledgeBase struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid      string    `gorm:"column:uuid;type:char(36);not null;uniqueIndex:uniq_kb_uuid"`
	OrgId     string    `gorm:"column:org_id;type:char(36);not null;index:idx_kb_org;uniqueIndex:uniq_kb_org_name"`
	Name      string    `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uniq_kb_org_name"`
	Namespace string    `gorm:"column:namespace;type:varchar(100);not null;uniqueIndex:uniq_kb_namespace"`
	Status    int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (KnowledgeBase) TableName() string { return "kb_knowledge_base" }

type Chatbot struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid      string    `gorm:"column:uuid;type:char(36);not null;uniqueIndex:uniq_chatbot_uuid"`
	OrgId     string    `gorm:"column:org_id;type:char(36);not null;index:idx_chatbot_org"`
	Name      string    `gorm:"column:name;type:varchar(64);not null"`
	KBUuid    string    `gorm:"column:kb_uuid;type:char(36);not null;index:idx_chatbot_kb"`
	Status    int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Chatbot) TableName() string { return "kb_chatbot" }

type Conversation struct {
	Id          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Uuid        string    `gorm:"column:uuid;type:char(36);not null;uniqueIndex:uniq_conversation_uuid"`
	ChatbotUuid string    `gorm:"column:chatbot_uuid;type:char(36);not null;index:idx_conversation_chatbot"`
	OrgId       string    `gorm:"column:org_id;type:char(36);not null;index:idx_conversation_org"`
	Status      int8      `gorm:"column:status;type:tinyint;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (Conversation) TableName() string { return "kb_conversation" }
