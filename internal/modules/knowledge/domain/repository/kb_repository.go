package repository

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/kb"
)

type KnowledgeBaseRepository interface {
	Create(ctx context.Context, base *kb.KnowledgeBase) error
	GetByUuid(ctx context.Context, orgID, uuid string) (*kb.KnowledgeBase, error)
	GetByNamespace(ctx context.Context, namespace string) (*kb.KnowledgeBase, error)
	ListByOrg(ctx context.Context, orgID string) ([]kb.KnowledgeBase, error)
	Rename(ctx context.Context, orgID, uuid, name string) error
	Delete(ctx context.Context, orgID, uuid string) error
}

type ChatbotRepository interface {
	Create(ctx context.Context, bot *kb.Chatbot) error
	GetByUuid(ctx context.Context, uuid string) (*kb.Chatbot, error)
	ListByOrg(ctx context.Context, orgID string) ([]kb.Chatbot, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, conv *kb.Conversation) error
	GetByUuid(ctx context.Context, uuid string) (*kb.Conversation, error)
}
