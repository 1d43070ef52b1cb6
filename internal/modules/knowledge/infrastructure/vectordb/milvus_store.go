package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/util"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusNamespaceStore 基于 Milvus 的命名空间索引实现。
// 条目向量与业务字段同集合存储，namespace 作为标量字段做过滤隔离
type MilvusNamespaceStore struct {
	cli         client.Client
	embedder    embedding.Embedder
	collection  string
	vectorDim   int
	vectorField string
}

var _ repository.NamespaceStore = (*MilvusNamespaceStore)(nil)

var outputFields = []string{"id", "namespace", "entry_key", "title", "content", "content_hash", "status", "metadata", "created_at"}

func NewMilvusNamespaceStore(cli client.Client, embedder embedding.Embedder, collection string, vectorDim int) (*MilvusNamespaceStore, error) {
	if cli == nil {
		return nil, fmt.Errorf("milvus client is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is empty")
	}
	return &MilvusNamespaceStore{
		cli:         cli,
		embedder:    embedder,
		collection:  collection,
		vectorDim:   vectorDim,
		vectorField: "vector",
	}, nil
}

func (s *MilvusNamespaceStore) Add(ctx context.Context, e entry.Entry) (string, error) {
	ids, err := s.AddBatch(ctx, []entry.Entry{e})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (s *MilvusNamespaceStore) AddBatch(ctx context.Context, entries []entry.Entry) ([]string, error) {
	if len(entries) == 0 {
		return []string{}, nil
	}

	// 生命周期标记内容为空，向量化时用 key 占位，检索打分不依赖它们
	texts := make([]string, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Content) != "" {
			texts[i] = e.Content
		} else if strings.TrimSpace(e.Title) != "" {
			texts[i] = e.Title
		} else {
			texts[i] = e.Key
		}
	}
	vecs64, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed entries: %w", err)
	}
	if len(vecs64) != len(entries) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d entries", len(vecs64), len(entries))
	}

	ids := make([]string, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))
	namespaces := make([]string, 0, len(entries))
	keys := make([]string, 0, len(entries))
	titles := make([]string, 0, len(entries))
	contents := make([]string, 0, len(entries))
	hashes := make([]string, 0, len(entries))
	statuses := make([]string, 0, len(entries))
	metas := make([]string, 0, len(entries))
	createdAts := make([]int64, 0, len(entries))

	for i, e := range entries {
		if strings.TrimSpace(e.Namespace) == "" {
			return nil, fmt.Errorf("entry missing namespace")
		}
		if len(vecs64[i]) != s.vectorDim {
			return nil, fmt.Errorf("vector dim mismatch: got %d want %d", len(vecs64[i]), s.vectorDim)
		}

		id := e.ID
		if id == "" {
			id = util.GenerateUUID()
		}
		statusJSON, err := entry.MarshalStatus(e.Status)
		if err != nil {
			return nil, err
		}
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, err
		}
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		vec32 := make([]float32, len(vecs64[i]))
		for j, v := range vecs64[i] {
			vec32[j] = float32(v)
		}

		ids = append(ids, id)
		vectors = append(vectors, vec32)
		namespaces = append(namespaces, e.Namespace)
		keys = append(keys, e.Key)
		titles = append(titles, e.Title)
		contents = append(contents, e.Content)
		hashes = append(hashes, e.ContentHash)
		statuses = append(statuses, statusJSON)
		metas = append(metas, string(metaJSON))
		createdAts = append(createdAts, createdAt.UnixMilli())
	}

	_, err = s.cli.Upsert(
		ctx,
		s.collection,
		"", // partition
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnVarChar("namespace", namespaces),
		entity.NewColumnVarChar("entry_key", keys),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("content_hash", hashes),
		entity.NewColumnVarChar("status", statuses),
		entity.NewColumnJSONBytes("metadata", stringSliceToJSONBytes(metas)),
		entity.NewColumnInt64("created_at", createdAts),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusNamespaceStore) Get(ctx context.Context, namespace, entryID string) (*entry.Entry, error) {
	expr := fmt.Sprintf(`namespace == "%s" and id == "%s"`, escapeExpr(namespace), escapeExpr(entryID))
	rs, err := s.cli.Query(ctx, s.collection, nil, expr, outputFields)
	if err != nil {
		return nil, err
	}
	entries, err := columnsToEntries(rs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *MilvusNamespaceStore) List(ctx context.Context, namespace, cursor string, limit int) (repository.ListPage, error) {
	if limit <= 0 {
		limit = 100
	}
	offset := int64(0)
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return repository.ListPage{}, fmt.Errorf("invalid cursor: %s", cursor)
		}
		offset = n
	}

	expr := fmt.Sprintf(`namespace == "%s"`, escapeExpr(namespace))
	rs, err := s.cli.Query(ctx, s.collection, nil, expr, outputFields,
		client.WithOffset(offset),
		client.WithLimit(int64(limit)),
	)
	if err != nil {
		return repository.ListPage{}, err
	}
	entries, err := columnsToEntries(rs)
	if err != nil {
		return repository.ListPage{}, err
	}

	page := repository.ListPage{Entries: entries}
	if len(entries) < limit {
		page.IsDone = true
	} else {
		page.ContinueCursor = strconv.FormatInt(offset+int64(len(entries)), 10)
	}
	return page, nil
}

func (s *MilvusNamespaceStore) Search(ctx context.Context, namespace, query string, limit int, scoreThreshold float32) ([]repository.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return []repository.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != s.vectorDim {
		return nil, fmt.Errorf("embedder returned unexpected query vector")
	}
	vec32 := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		vec32[i] = float32(v)
	}

	sp, _ := entity.NewIndexAUTOINDEXSearchParam(1)
	expr := fmt.Sprintf(`namespace == "%s"`, escapeExpr(namespace))

	res, err := s.cli.Search(
		ctx,
		s.collection,
		nil,
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(vec32)},
		s.vectorField,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, err
	}

	hits := make([]repository.SearchHit, 0)
	if len(res) == 0 {
		return hits, nil
	}
	sr := res[0]
	if sr.Err != nil {
		return nil, sr.Err
	}

	entries, err := searchColumnsToEntries(sr.IDs, sr.Fields, sr.ResultCount)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		score := sr.Scores[i]
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, repository.SearchHit{Entry: e, Score: score})
	}
	return hits, nil
}

func (s *MilvusNamespaceStore) Delete(ctx context.Context, namespace string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(entryIDs))
	for _, id := range entryIDs {
		quoted = append(quoted, escapeExpr(id))
	}
	expr := fmt.Sprintf(`namespace == "%s" and id in ["%s"]`, escapeExpr(namespace), strings.Join(quoted, `","`))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusNamespaceStore) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	expr := fmt.Sprintf(`namespace == "%s"`, escapeExpr(namespace))
	rs, err := s.cli.Query(ctx, s.collection, nil, expr, []string{"id"}, client.WithLimit(1))
	if err != nil {
		return false, err
	}
	for _, col := range rs {
		if col.Name() == "id" {
			return col.Len() > 0, nil
		}
	}
	return false, nil
}

// Helpers

func columnsToEntries(rs client.ResultSet) ([]entry.Entry, error) {
	getCol := func(name string) entity.Column {
		for _, c := range rs {
			if c.Name() == name {
				return c
			}
		}
		return nil
	}
	idCol := getCol("id")
	if idCol == nil {
		return []entry.Entry{}, nil
	}
	return buildEntries(idCol, getCol, idCol.Len())
}

func searchColumnsToEntries(idCol entity.Column, fields []entity.Column, count int) ([]entry.Entry, error) {
	getCol := func(name string) entity.Column {
		for _, c := range fields {
			if c.Name() == name {
				return c
			}
		}
		return nil
	}
	return buildEntries(idCol, getCol, count)
}

func buildEntries(idCol entity.Column, getCol func(string) entity.Column, count int) ([]entry.Entry, error) {
	nsCol := getCol("namespace")
	keyCol := getCol("entry_key")
	titleCol := getCol("title")
	contentCol := getCol("content")
	hashCol := getCol("content_hash")
	statusCol := getCol("status")
	metaCol := getCol("metadata")
	createdCol := getCol("created_at")

	entries := make([]entry.Entry, 0, count)
	for i := 0; i < count; i++ {
		id, _ := idCol.GetAsString(i)
		e := entry.Entry{ID: id}

		if nsCol != nil {
			e.Namespace, _ = nsCol.GetAsString(i)
		}
		if keyCol != nil {
			e.Key, _ = keyCol.GetAsString(i)
		}
		if titleCol != nil {
			e.Title, _ = titleCol.GetAsString(i)
		}
		if contentCol != nil {
			e.Content, _ = contentCol.GetAsString(i)
		}
		if hashCol != nil {
			e.ContentHash, _ = hashCol.GetAsString(i)
		}
		if statusCol != nil {
			raw, _ := statusCol.GetAsString(i)
			st, err := entry.UnmarshalStatus(raw)
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", id, err)
			}
			e.Status = st
		} else {
			e.Status = entry.Processing{}
		}
		if metaCol != nil {
			if v, err := metaCol.Get(i); err == nil {
				if bs, ok := v.([]byte); ok && len(bs) > 0 {
					if err := json.Unmarshal(bs, &e.Metadata); err != nil {
						return nil, fmt.Errorf("entry %s metadata: %w", id, err)
					}
				}
			}
		}
		if createdCol != nil {
			ms, _ := createdCol.GetAsInt64(i)
			if ms > 0 {
				e.CreatedAt = time.UnixMilli(ms)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func stringSliceToJSONBytes(values []string) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out
}

func escapeExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
