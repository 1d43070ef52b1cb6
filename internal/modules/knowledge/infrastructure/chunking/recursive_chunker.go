package chunking

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// RecursiveChunker 基于 Eino recursive splitter 的第三种策略，
// 按分隔符层级递归切分，多语言文本下边界质量更好
type RecursiveChunker struct {
	ChunkSize int
	Overlap   int

	initOnce sync.Once
	initErr  error
	impl     document.Transformer
}

func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &RecursiveChunker{ChunkSize: size, Overlap: overlap}
}

var _ Chunker = (*RecursiveChunker)(nil)

func (c *RecursiveChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if text == "" {
		return []Chunk{}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.Overlap,
			Separators:  []string{"\n\n", "\n", "。", "！", "？", ". ", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.impl = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.impl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	frags, err := c.impl.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}

	out := make([]Chunk, 0, len(frags))
	sentBase := 0
	for _, f := range frags {
		if f == nil || f.Content == "" {
			continue
		}
		n := len(SplitSentences(f.Content))
		if n == 0 {
			n = 1
		}
		out = append(out, Chunk{
			Text:          f.Content,
			StartSentence: sentBase,
			EndSentence:   sentBase + n - 1,
			SentenceCount: n,
		})
		sentBase += n
	}
	return out, nil
}
