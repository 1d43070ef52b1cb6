package vectordb

import (
	"context"
	"testing"

	"EchoDesk/internal/modules/knowledge/domain/entry"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vecEmbedder 把已知文本映射到固定向量，未知文本给一个正交向量
type vecEmbedder struct {
	vectors map[string][]float64
}

func (v *vecEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if vec, ok := v.vectors[t]; ok {
			out[i] = vec
		} else {
			out[i] = []float64{0, 0, 1}
		}
	}
	return out, nil
}

func newTestStore() *MemoryNamespaceStore {
	return NewMemoryNamespaceStore(&vecEmbedder{vectors: map[string][]float64{
		"how to reset password": {1, 0, 0},
		"password reset guide":  {0.9, 0.1, 0},
		"billing overview":      {0, 1, 0},
	}})
}

func TestMemoryStoreAddGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, err := s.Add(ctx, entry.Entry{Namespace: "org_kb", Key: "k1", Content: "billing overview", Status: entry.Ready{}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, "org_kb", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.Key)
	assert.Equal(t, entry.StatusReady, got.Status.Kind())

	// 不存在与跨命名空间都拿不到
	missing, err := s.Get(ctx, "org_kb", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
	other, err := s.Get(ctx, "other_ns", id)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.Delete(ctx, "org_kb", []string{id}))
	got, err = s.Get(ctx, "org_kb", id)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreAddRequiresNamespace(t *testing.T) {
	s := newTestStore()
	_, err := s.Add(context.Background(), entry.Entry{Content: "x"})
	assert.Error(t, err)
}

func TestMemoryStoreListPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < 5; i++ {
		_, err := s.Add(ctx, entry.Entry{Namespace: "ns", Key: "k", Content: "billing overview"})
		require.NoError(t, err)
	}

	page, err := s.List(ctx, "ns", "", 2)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.False(t, page.IsDone)
	require.NotEmpty(t, page.ContinueCursor)

	seen := len(page.Entries)
	cursor := page.ContinueCursor
	for !page.IsDone {
		page, err = s.List(ctx, "ns", cursor, 2)
		require.NoError(t, err)
		seen += len(page.Entries)
		cursor = page.ContinueCursor
	}
	assert.Equal(t, 5, seen)

	_, err = s.List(ctx, "ns", "not-a-number", 2)
	assert.Error(t, err)
}

func TestMemoryStoreSearchRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, err := s.AddBatch(ctx, []entry.Entry{
		{Namespace: "ns", Key: "a", Content: "password reset guide", Status: entry.Ready{}},
		{Namespace: "ns", Key: "b", Content: "billing overview", Status: entry.Ready{}},
	})
	require.NoError(t, err)

	hits, err := s.Search(ctx, "ns", "how to reset password", 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Entry.Key)
	assert.Greater(t, hits[0].Score, float32(0.5))

	// 宽松阈值下 billing 仍然不相关（正交向量，得分 0）
	hits, err = s.Search(ctx, "ns", "how to reset password", 10, 0.35)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// 空查询直接空结果
	hits, err = s.Search(ctx, "ns", "  ", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStoreHasNamespace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	ok, err := s.HasNamespace(ctx, "ns")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Add(ctx, entry.Entry{Namespace: "ns", Content: "billing overview"})
	require.NoError(t, err)

	ok, err = s.HasNamespace(ctx, "ns")
	require.NoError(t, err)
	assert.True(t, ok)
}
