package embedding

import (
	"context"
	"hash/fnv"

	"github.com/cloudwego/eino/components/embedding"
)

// MockEmbedder 无外部依赖的确定性向量，同一文本总是得到同一向量
type MockEmbedder struct {
	Dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{Dim: dim}
}

func (m *MockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	result := make([][]float64, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum64()

		vec := make([]float64, m.Dim)
		for j := 0; j < m.Dim; j++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[j] = float64(seed%1000)/1000.0 - 0.5
		}
		result[i] = vec
	}
	return result, nil
}

// 确保实现接口
var _ embedding.Embedder = (*MockEmbedder)(nil)
