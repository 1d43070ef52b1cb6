package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/dto/respond"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/kb"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// KnowledgeBaseService 知识库与机器人管理
type KnowledgeBaseService interface {
	Create(ctx context.Context, orgID string, req request.CreateKnowledgeBaseRequest) (*respond.KnowledgeBaseRespond, error)
	List(ctx context.Context, orgID string) ([]respond.KnowledgeBaseRespond, error)
	Rename(ctx context.Context, orgID string, req request.RenameKnowledgeBaseRequest) error
	// Delete 删除知识库记录并调度整个命名空间的后台清扫
	Delete(ctx context.Context, orgID, uuid string) error

	CreateChatbot(ctx context.Context, orgID string, req request.CreateChatbotRequest) (*respond.ChatbotRespond, error)
	ListChatbots(ctx context.Context, orgID string) ([]respond.ChatbotRespond, error)
	CreateConversation(ctx context.Context, orgID string, req request.CreateConversationRequest) (*respond.ConversationRespond, error)
}

type knowledgeBaseServiceImpl struct {
	kbRepo   repository.KnowledgeBaseRepository
	botRepo  repository.ChatbotRepository
	convRepo repository.ConversationRepository
	taskRepo repository.IngestTaskRepository
}

func NewKnowledgeBaseService(
	kbRepo repository.KnowledgeBaseRepository,
	botRepo repository.ChatbotRepository,
	convRepo repository.ConversationRepository,
	taskRepo repository.IngestTaskRepository,
) KnowledgeBaseService {
	return &knowledgeBaseServiceImpl{
		kbRepo:   kbRepo,
		botRepo:  botRepo,
		convRepo: convRepo,
		taskRepo: taskRepo,
	}
}

// Namespace 知识库命名空间的规范形式，组织 ID 前缀保证跨租户不冲突
func Namespace(orgID, kbUuid string) string {
	return strings.TrimSpace(orgID) + "_" + strings.TrimSpace(kbUuid)
}

func (s *knowledgeBaseServiceImpl) Create(ctx context.Context, orgID string, req request.CreateKnowledgeBaseRequest) (*respond.KnowledgeBaseRespond, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, xerr.New(xerr.Unauthorized, "missing organization")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerr.New(xerr.BadRequest, "knowledge base name is required")
	}

	uuid := util.GenerateUUID()
	base := &kb.KnowledgeBase{
		Uuid:      uuid,
		OrgId:     orgID,
		Name:      name,
		Namespace: Namespace(orgID, uuid),
		Status:    1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.kbRepo.Create(ctx, base); err != nil {
		return nil, err
	}

	zlog.Info("knowledge base created",
		zap.String("org_id", orgID),
		zap.String("kb_uuid", uuid),
		zap.String("namespace", base.Namespace))

	return &respond.KnowledgeBaseRespond{
		Uuid:      base.Uuid,
		Name:      base.Name,
		Namespace: base.Namespace,
		CreatedAt: base.CreatedAt,
	}, nil
}

func (s *knowledgeBaseServiceImpl) List(ctx context.Context, orgID string) ([]respond.KnowledgeBaseRespond, error) {
	bases, err := s.kbRepo.ListByOrg(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return nil, err
	}
	out := make([]respond.KnowledgeBaseRespond, 0, len(bases))
	for _, b := range bases {
		out = append(out, respond.KnowledgeBaseRespond{
			Uuid:      b.Uuid,
			Name:      b.Name,
			Namespace: b.Namespace,
			CreatedAt: b.CreatedAt,
		})
	}
	return out, nil
}

func (s *knowledgeBaseServiceImpl) Rename(ctx context.Context, orgID string, req request.RenameKnowledgeBaseRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return xerr.New(xerr.BadRequest, "knowledge base name is required")
	}
	base, err := s.kbRepo.GetByUuid(ctx, strings.TrimSpace(orgID), strings.TrimSpace(req.Uuid))
	if err != nil {
		return err
	}
	if base == nil {
		return xerr.New(xerr.NotFound, "knowledge base not found")
	}
	return s.kbRepo.Rename(ctx, orgID, req.Uuid, name)
}

func (s *knowledgeBaseServiceImpl) Delete(ctx context.Context, orgID, uuid string) error {
	orgID = strings.TrimSpace(orgID)
	uuid = strings.TrimSpace(uuid)
	base, err := s.kbRepo.GetByUuid(ctx, orgID, uuid)
	if err != nil {
		return err
	}
	if base == nil {
		return xerr.New(xerr.NotFound, "knowledge base not found")
	}

	if err := s.kbRepo.Delete(ctx, orgID, uuid); err != nil {
		return err
	}

	payload, _ := json.Marshal(file.DeleteSweepPayload{Namespace: base.Namespace})
	task := &file.IngestTask{
		TaskType:    file.TaskTypeDeleteSweep,
		OrgId:       orgID,
		Namespace:   base.Namespace,
		DedupKey:    "kb_purge:" + base.Namespace + ":" + util.GenerateShortUUID(),
		PayloadJson: string(payload),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		zlog.Warn("schedule namespace purge failed",
			zap.String("namespace", base.Namespace), zap.Error(err))
	}
	return nil
}

func (s *knowledgeBaseServiceImpl) CreateChatbot(ctx context.Context, orgID string, req request.CreateChatbotRequest) (*respond.ChatbotRespond, error) {
	orgID = strings.TrimSpace(orgID)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, xerr.New(xerr.BadRequest, "chatbot name is required")
	}
	base, err := s.kbRepo.GetByUuid(ctx, orgID, strings.TrimSpace(req.KBUuid))
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, xerr.New(xerr.NotFound, "knowledge base not found")
	}

	bot := &kb.Chatbot{
		Uuid:      util.GenerateUUID(),
		OrgId:     orgID,
		Name:      name,
		KBUuid:    base.Uuid,
		Status:    1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.botRepo.Create(ctx, bot); err != nil {
		return nil, err
	}
	return &respond.ChatbotRespond{
		Uuid:      bot.Uuid,
		Name:      bot.Name,
		KBUuid:    bot.KBUuid,
		CreatedAt: bot.CreatedAt,
	}, nil
}

func (s *knowledgeBaseServiceImpl) ListChatbots(ctx context.Context, orgID string) ([]respond.ChatbotRespond, error) {
	bots, err := s.botRepo.ListByOrg(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return nil, err
	}
	out := make([]respond.ChatbotRespond, 0, len(bots))
	for _, b := range bots {
		out = append(out, respond.ChatbotRespond{
			Uuid:      b.Uuid,
			Name:      b.Name,
			KBUuid:    b.KBUuid,
			CreatedAt: b.CreatedAt,
		})
	}
	return out, nil
}

func (s *knowledgeBaseServiceImpl) CreateConversation(ctx context.Context, orgID string, req request.CreateConversationRequest) (*respond.ConversationRespond, error) {
	orgID = strings.TrimSpace(orgID)
	bot, err := s.botRepo.GetByUuid(ctx, strings.TrimSpace(req.ChatbotUuid))
	if err != nil {
		return nil, err
	}
	if bot == nil || bot.OrgId != orgID {
		return nil, xerr.New(xerr.NotFound, "chatbot not found")
	}

	conv := &kb.Conversation{
		Uuid:        util.GenerateUUID(),
		ChatbotUuid: bot.Uuid,
		OrgId:       orgID,
		Status:      1,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return &respond.ConversationRespond{
		Uuid:        conv.Uuid,
		ChatbotUuid: conv.ChatbotUuid,
		CreatedAt:   conv.CreatedAt,
	}, nil
}
