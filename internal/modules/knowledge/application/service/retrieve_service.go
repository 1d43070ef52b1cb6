package service

import (
	"context"
	"strings"

	"EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/dto/respond"
	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// SentinelMessage 未命中时的兜底话术，检索失败也走这条
const SentinelMessage = "No relevant information found in the knowledge base."

// RetrieveService 检索闸门。两段阈值召回加关键词复核，
// 任何内部错误都折叠成 sentinel，绝不打断对话流程
type RetrieveService interface {
	Query(ctx context.Context, orgID string, req request.QueryRequest) (*respond.QueryRespond, error)
}

type retrieveServiceImpl struct {
	kbRepo   repository.KnowledgeBaseRepository
	botRepo  repository.ChatbotRepository
	convRepo repository.ConversationRepository
	tombRepo repository.TombstoneRepository
	store    repository.NamespaceStore

	strictThreshold  float32
	lenientThreshold float32
	searchLimit      int
	minKeywordLength int
}

func NewRetrieveService(
	kbRepo repository.KnowledgeBaseRepository,
	botRepo repository.ChatbotRepository,
	convRepo repository.ConversationRepository,
	tombRepo repository.TombstoneRepository,
	store repository.NamespaceStore,
	strictThreshold, lenientThreshold float64,
	searchLimit, minKeywordLength int,
) RetrieveService {
	if strictThreshold <= 0 {
		strictThreshold = 0.5
	}
	if lenientThreshold <= 0 {
		lenientThreshold = 0.35
	}
	if searchLimit <= 0 {
		searchLimit = 10
	}
	if minKeywordLength <= 0 {
		minKeywordLength = 3
	}
	return &retrieveServiceImpl{
		kbRepo:           kbRepo,
		botRepo:          botRepo,
		convRepo:         convRepo,
		tombRepo:         tombRepo,
		store:            store,
		strictThreshold:  float32(strictThreshold),
		lenientThreshold: float32(lenientThreshold),
		searchLimit:      searchLimit,
		minKeywordLength: minKeywordLength,
	}
}

func sentinel() *respond.QueryRespond {
	return &respond.QueryRespond{IsRelevant: false, Message: SentinelMessage}
}

func (s *retrieveServiceImpl) Query(ctx context.Context, orgID string, req request.QueryRequest) (*respond.QueryRespond, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return sentinel(), nil
	}

	namespace, err := s.resolveNamespace(ctx, orgID, req)
	if err != nil {
		zlog.Warn("retrieve namespace resolution failed",
			zap.String("org_id", orgID), zap.Error(err))
		return sentinel(), nil
	}

	hits, err := s.twoPassSearch(ctx, namespace, question, req.Limit)
	if err != nil {
		zlog.Warn("retrieve search failed",
			zap.String("namespace", namespace), zap.Error(err))
		return sentinel(), nil
	}
	if len(hits) == 0 {
		return sentinel(), nil
	}

	if !s.keywordGate(question, hits) {
		return sentinel(), nil
	}

	chunks := make([]respond.QueryChunkRespond, 0, len(hits))
	var sb strings.Builder
	for _, h := range hits {
		chunks = append(chunks, respond.QueryChunkRespond{
			EntryID: h.Entry.ID,
			Title:   h.Entry.Title,
			Content: h.Entry.Content,
			Score:   h.Score,
		})
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if title := strings.TrimSpace(h.Entry.Title); title != "" {
			sb.WriteString("[" + title + "]\n")
		}
		sb.WriteString(h.Entry.Content)
	}

	return &respond.QueryRespond{
		IsRelevant:    true,
		GroundingText: sb.String(),
		Chunks:        chunks,
	}, nil
}

// resolveNamespace conversation → chatbot → kb → namespace，
// 都没配置时退回组织级命名空间
func (s *retrieveServiceImpl) resolveNamespace(ctx context.Context, orgID string, req request.QueryRequest) (string, error) {
	orgID = strings.TrimSpace(orgID)

	kbUuid := strings.TrimSpace(req.KBUuid)
	botUuid := strings.TrimSpace(req.ChatbotUuid)

	if convUuid := strings.TrimSpace(req.ConversationUuid); convUuid != "" && botUuid == "" {
		conv, err := s.convRepo.GetByUuid(ctx, convUuid)
		if err != nil {
			return "", err
		}
		if conv != nil && conv.OrgId == orgID {
			botUuid = conv.ChatbotUuid
		}
	}

	if botUuid != "" && kbUuid == "" {
		bot, err := s.botRepo.GetByUuid(ctx, botUuid)
		if err != nil {
			return "", err
		}
		if bot != nil && bot.OrgId == orgID {
			kbUuid = bot.KBUuid
		}
	}

	if kbUuid != "" {
		base, err := s.kbRepo.GetByUuid(ctx, orgID, kbUuid)
		if err != nil {
			return "", err
		}
		if base != nil {
			return base.Namespace, nil
		}
	}

	return orgID, nil
}

// twoPassSearch 先严后宽。严格阈值避免弱相关噪声，
// 宽松阈值兜住短问题和同义改写
func (s *retrieveServiceImpl) twoPassSearch(ctx context.Context, namespace, question string, limit int) ([]repository.SearchHit, error) {
	if limit <= 0 || limit > s.searchLimit {
		limit = s.searchLimit
	}

	tombstoned, err := s.tombRepo.PendingGroupKeys(ctx, namespace)
	if err != nil {
		return nil, err
	}
	hidden := make(map[string]struct{}, len(tombstoned))
	for _, k := range tombstoned {
		hidden[k] = struct{}{}
	}

	hits, err := s.store.Search(ctx, namespace, question, limit, s.strictThreshold)
	if err != nil {
		return nil, err
	}
	hits = filterHits(hits, hidden)
	if len(hits) > 0 {
		return hits, nil
	}

	hits, err = s.store.Search(ctx, namespace, question, limit, s.lenientThreshold)
	if err != nil {
		return nil, err
	}
	return filterHits(hits, hidden), nil
}

// filterHits 只保留 ready 分块，且排除墓碑命中的文件
func filterHits(hits []repository.SearchHit, hidden map[string]struct{}) []repository.SearchHit {
	out := hits[:0]
	for _, h := range hits {
		if h.Entry.Status == nil || h.Entry.Status.Kind() != entry.StatusReady {
			continue
		}
		if _, gone := hidden[entry.GroupKeyOf(h.Entry)]; gone {
			continue
		}
		out = append(out, h)
	}
	return out
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "your": {}, "all": {}, "can": {}, "could": {}, "would": {},
	"should": {}, "have": {}, "has": {}, "had": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "with": {}, "from": {}, "about": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "whom": {}, "why": {},
	"how": {}, "does": {}, "did": {}, "will": {}, "was": {}, "were": {},
	"been": {}, "being": {}, "there": {}, "their": {}, "they": {}, "them": {},
	"please": {}, "tell": {},
}

// keywordGate 关键词复核。向量相似度会召回"话题相近但事实无关"的
// 分块，这里要求召回文本真的含有问题里的词
func (s *retrieveServiceImpl) keywordGate(question string, hits []repository.SearchHit) bool {
	keywords := extractKeywords(question, s.minKeywordLength)
	if len(keywords) == 0 {
		return true
	}

	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(strings.ToLower(h.Entry.Title))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(h.Entry.Content))
		sb.WriteString(" ")
	}
	combined := sb.String()

	matched := 0
	for _, kw := range keywords {
		if strings.Contains(combined, kw) {
			matched++
		}
	}

	required := 2
	if len(keywords) <= 2 {
		required = 1
	}
	return matched >= required
}

func extractKeywords(question string, minLen int) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(question) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}

	seen := make(map[string]struct{})
	var keywords []string
	for _, tok := range strings.Fields(sb.String()) {
		if len(tok) < minLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}
