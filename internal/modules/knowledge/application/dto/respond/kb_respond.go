package respond

import "time"

// KnowledgeBaseRespond 知识库视图
type KnowledgeBaseRespond struct {
	Uuid      string    `json:"uuid"`
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatbotRespond 机器人视图
type ChatbotRespond struct {
	Uuid      string    `json:"uuid"`
	Name      string    `json:"name"`
	KBUuid    string    `json:"kb_uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationRespond 会话视图
type ConversationRespond struct {
	Uuid        string    `json:"uuid"`
	ChatbotUuid string    `json:"chatbot_uuid"`
	CreatedAt   time.Time `json:"created_at"`
}
