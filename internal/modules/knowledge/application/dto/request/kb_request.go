package request

// CreateKnowledgeBaseRequest 创建知识库请求
type CreateKnowledgeBaseRequest struct {
	Name string `json:"name" binding:"required"` // 知识库名称（组织内唯一）
}

// RenameKnowledgeBaseRequest 重命名知识库请求
type RenameKnowledgeBaseRequest struct {
	Uuid string `json:"uuid" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// CreateChatbotRequest 创建机器人请求
type CreateChatbotRequest struct {
	Name   string `json:"name" binding:"required"`
	KBUuid string `json:"kb_uuid" binding:"required"` // 绑定的知识库 uuid
}

// CreateConversationRequest 创建会话请求
type CreateConversationRequest struct {
	ChatbotUuid string `json:"chatbot_uuid" binding:"required"`
}
