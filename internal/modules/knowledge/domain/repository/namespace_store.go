package repository

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/entry"
)

// NamespaceStore 是 domain 层定义的"命名空间索引"抽象。
//
// 设计约束：
// 1) application / domain 只能依赖本接口，不应直接依赖 Milvus SDK 或 Eino。
// 2) infrastructure 通过适配器实现本接口（MilvusNamespaceStore / MemoryNamespaceStore）。
//
// 每个知识库对应一个 namespace，所有读写都必须携带 namespace，保证租户隔离。

type SearchHit struct {
	Entry entry.Entry
	Score float32
}

// ListPage 游标分页结果。ContinueCursor 透传给下一次 List 调用
type ListPage struct {
	Entries        []entry.Entry
	ContinueCursor string
	IsDone         bool
}

// NamespaceStore 命名空间索引接口
type NamespaceStore interface {
	// Add 写入一条条目，返回条目 ID。空内容的生命周期标记同样占一条记录
	Add(ctx context.Context, e entry.Entry) (string, error)
	// AddBatch 批量写入，全部成功才返回 ID 列表
	AddBatch(ctx context.Context, entries []entry.Entry) ([]string, error)
	Get(ctx context.Context, namespace, entryID string) (*entry.Entry, error)
	// List 按写入顺序分页扫描命名空间
	List(ctx context.Context, namespace, cursor string, limit int) (ListPage, error)
	// Search 向量检索，只返回得分不低于 scoreThreshold 的条目
	Search(ctx context.Context, namespace, query string, limit int, scoreThreshold float32) ([]SearchHit, error)
	Delete(ctx context.Context, namespace string, entryIDs []string) error
	// HasNamespace 命名空间是否存在任何条目
	HasNamespace(ctx context.Context, namespace string) (bool, error)
}
