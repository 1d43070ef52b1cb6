package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/util"

	"github.com/cloudwego/eino/components/embedding"
)

// MemoryNamespaceStore 进程内命名空间索引，供单测和本地联调使用
type MemoryNamespaceStore struct {
	mu       sync.RWMutex
	embedder embedding.Embedder
	// 按 namespace 保存写入顺序
	order   map[string][]string
	records map[string]*memoryRecord
}

type memoryRecord struct {
	entry  entry.Entry
	vector []float64
}

var _ repository.NamespaceStore = (*MemoryNamespaceStore)(nil)

func NewMemoryNamespaceStore(embedder embedding.Embedder) *MemoryNamespaceStore {
	return &MemoryNamespaceStore{
		embedder: embedder,
		order:    make(map[string][]string),
		records:  make(map[string]*memoryRecord),
	}
}

func (s *MemoryNamespaceStore) Add(ctx context.Context, e entry.Entry) (string, error) {
	ids, err := s.AddBatch(ctx, []entry.Entry{e})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *MemoryNamespaceStore) AddBatch(ctx context.Context, entries []entry.Entry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}

	var vectors [][]float64
	if s.embedder != nil {
		texts := make([]string, len(entries))
		for i, e := range entries {
			texts[i] = e.Content
		}
		vecs, err := s.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, err
		}
		vectors = vecs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Namespace) == "" {
			return nil, fmt.Errorf("entry missing namespace")
		}
		if e.ID == "" {
			e.ID = util.GenerateUUID()
		}
		if e.Status == nil {
			e.Status = entry.Processing{}
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}

		key := e.Namespace + "/" + e.ID
		if _, exists := s.records[key]; !exists {
			s.order[e.Namespace] = append(s.order[e.Namespace], e.ID)
		}
		rec := &memoryRecord{entry: e}
		if vectors != nil {
			rec.vector = vectors[i]
		}
		s.records[key] = rec
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *MemoryNamespaceStore) Get(ctx context.Context, namespace, entryID string) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[namespace+"/"+entryID]
	if !ok {
		return nil, nil
	}
	e := rec.entry
	return &e, nil
}

func (s *MemoryNamespaceStore) List(ctx context.Context, namespace, cursor string, limit int) (repository.ListPage, error) {
	if limit <= 0 {
		limit = 100
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return repository.ListPage{}, fmt.Errorf("invalid cursor: %s", cursor)
		}
		offset = n
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[namespace]
	if offset >= len(ids) {
		return repository.ListPage{Entries: []entry.Entry{}, IsDone: true}, nil
	}

	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	entries := make([]entry.Entry, 0, end-offset)
	for _, id := range ids[offset:end] {
		if rec, ok := s.records[namespace+"/"+id]; ok {
			entries = append(entries, rec.entry)
		}
	}

	page := repository.ListPage{Entries: entries}
	if end >= len(ids) {
		page.IsDone = true
	} else {
		page.ContinueCursor = strconv.Itoa(end)
	}
	return page, nil
}

func (s *MemoryNamespaceStore) Search(ctx context.Context, namespace, query string, limit int, scoreThreshold float32) ([]repository.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []repository.SearchHit{}, nil
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("memory store has no embedder")
	}
	if limit <= 0 {
		limit = 10
	}

	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qv := vecs[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]repository.SearchHit, 0)
	for _, id := range s.order[namespace] {
		rec, ok := s.records[namespace+"/"+id]
		if !ok || rec.vector == nil {
			continue
		}
		score := float32(cosine(qv, rec.vector))
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, repository.SearchHit{Entry: rec.entry, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryNamespaceStore) Delete(ctx context.Context, namespace string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		drop[id] = struct{}{}
		delete(s.records, namespace+"/"+id)
	}

	kept := s.order[namespace][:0]
	for _, id := range s.order[namespace] {
		if _, gone := drop[id]; !gone {
			kept = append(kept, id)
		}
	}
	s.order[namespace] = kept
	return nil
}

func (s *MemoryNamespaceStore) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[namespace]) > 0, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
