package persistence

import (
	"context"
	"errors"

	"EchoDesk/internal/modules/knowledge/domain/kb"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

type knowledgeBaseRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) repository.KnowledgeBaseRepository {
	return &knowledgeBaseRepositoryImpl{db: db}
}

func (r *knowledgeBaseRepositoryImpl) Create(ctx context.Context, base *kb.KnowledgeBase) error {
	return r.db.WithContext(ctx).Create(base).Error
}

func (r *knowledgeBaseRepositoryImpl) GetByUuid(ctx context.Context, orgID, uuid string) (*kb.KnowledgeBase, error) {
	var base kb.KnowledgeBase
	err := r.db.WithContext(ctx).Where("org_id = ? AND uuid = ?", orgID, uuid).Take(&base).Error
	if err == nil {
		return &base, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *knowledgeBaseRepositoryImpl) GetByNamespace(ctx context.Context, namespace string) (*kb.KnowledgeBase, error) {
	var base kb.KnowledgeBase
	err := r.db.WithContext(ctx).Where("namespace = ?", namespace).Take(&base).Error
	if err == nil {
		return &base, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *knowledgeBaseRepositoryImpl) ListByOrg(ctx context.Context, orgID string) ([]kb.KnowledgeBase, error) {
	var bases []kb.KnowledgeBase
	err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("id ASC").Find(&bases).Error
	return bases, err
}

func (r *knowledgeBaseRepositoryImpl) Rename(ctx context.Context, orgID, uuid, name string) error {
	return r.db.WithContext(ctx).Model(&kb.KnowledgeBase{}).
		Where("org_id = ? AND uuid = ?", orgID, uuid).
		Update("name", name).Error
}

func (r *knowledgeBaseRepositoryImpl) Delete(ctx context.Context, orgID, uuid string) error {
	return r.db.WithContext(ctx).Where("org_id = ? AND uuid = ?", orgID, uuid).Delete(&kb.KnowledgeBase{}).Error
}

type chatbotRepositoryImpl struct {
	db *gorm.DB
}

func NewChatbotRepository(db *gorm.DB) repository.ChatbotRepository {
	return &chatbotRepositoryImpl{db: db}
}

func (r *chatbotRepositoryImpl) Create(ctx context.Context, bot *kb.Chatbot) error {
	return r.db.WithContext(ctx).Create(bot).Error
}

func (r *chatbotRepositoryImpl) GetByUuid(ctx context.Context, uuid string) (*kb.Chatbot, error) {
	var bot kb.Chatbot
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).Take(&bot).Error
	if err == nil {
		return &bot, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *chatbotRepositoryImpl) ListByOrg(ctx context.Context, orgID string) ([]kb.Chatbot, error) {
	var bots []kb.Chatbot
	err := r.db.WithContext(ctx).Where("org_id = ?", orgID).Order("id ASC").Find(&bots).Error
	return bots, err
}

type conversationRepositoryImpl struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) repository.ConversationRepository {
	return &conversationRepositoryImpl{db: db}
}

func (r *conversationRepositoryImpl) Create(ctx context.Context, conv *kb.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *conversationRepositoryImpl) GetByUuid(ctx context.Context, uuid string) (*kb.Conversation, error) {
	var conv kb.Conversation
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).Take(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}
