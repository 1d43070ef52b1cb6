package chunking

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

// SemanticChunker 语义断点切片：对相邻句子窗口做向量相似度比较，
// 在相似度跌破百分位阈值处断开，让同一话题的句子落在同一个切片里
type SemanticChunker struct {
	embedder embedding.Embedder

	BufferSize           int
	BreakpointPercentile float64
	MaxChunkSize         int
	BatchSize            int
}

func NewSemanticChunker(embedder embedding.Embedder) *SemanticChunker {
	return &SemanticChunker{
		embedder:             embedder,
		BufferSize:           1,
		BreakpointPercentile: 95,
		MaxChunkSize:         4000,
		BatchSize:            100,
	}
}

var _ Chunker = (*SemanticChunker)(nil)

func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return []Chunk{}, nil
	}
	if len(sentences) == 1 {
		return []Chunk{{Text: sentences[0], StartSentence: 0, EndSentence: 0, SentenceCount: 1}}, nil
	}

	chunks, err := c.createChunks(ctx, sentences)
	if err != nil {
		return nil, err
	}

	if c.MaxChunkSize <= 0 {
		return chunks, nil
	}

	// 超限切片按句子数均分
	final := make([]Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if len([]rune(ch.Text)) <= c.MaxChunkSize {
			final = append(final, ch)
			continue
		}
		parts := SplitSentences(ch.Text)
		if len(parts) == 0 {
			final = append(final, ch)
			continue
		}
		numParts := int(math.Ceil(float64(len([]rune(ch.Text))) / float64(c.MaxChunkSize)))
		per := int(math.Ceil(float64(len(parts)) / float64(numParts)))
		if per <= 0 {
			per = 1
		}
		for i := 0; i < len(parts); i += per {
			endIdx := i + per
			if endIdx > len(parts) {
				endIdx = len(parts)
			}
			sub := parts[i:endIdx]
			final = append(final, Chunk{
				Text:          strings.Join(sub, " "),
				StartSentence: ch.StartSentence + i,
				EndSentence:   ch.StartSentence + i + len(sub) - 1,
				SentenceCount: len(sub),
			})
		}
	}
	return final, nil
}

func (c *SemanticChunker) createChunks(ctx context.Context, sentences []string) ([]Chunk, error) {
	buf := c.BufferSize
	if buf < 0 {
		buf = 0
	}

	// 每个句子与前后 buf 个邻居合并后参与 embedding，平滑单句噪声
	combined := make([]string, len(sentences))
	for i := range sentences {
		start := i - buf
		if start < 0 {
			start = 0
		}
		end := i + buf + 1
		if end > len(sentences) {
			end = len(sentences)
		}
		combined[i] = strings.Join(sentences[start:end], " ")
	}

	vecs, err := c.embedBatches(ctx, combined)
	if err != nil {
		return nil, err
	}

	sims := make([]float64, 0, len(vecs)-1)
	for i := 0; i < len(vecs)-1; i++ {
		sims = append(sims, CosineSimilarity(vecs[i], vecs[i+1]))
	}

	threshold := Percentile(sims, c.percentile())

	breakpoints := []int{0}
	for i := range sims {
		if sims[i] < threshold {
			breakpoints = append(breakpoints, i+1)
		}
	}
	breakpoints = append(breakpoints, len(sentences))

	chunks := make([]Chunk, 0, len(breakpoints)-1)
	for i := 0; i < len(breakpoints)-1; i++ {
		startIdx := breakpoints[i]
		endIdx := breakpoints[i+1]
		if endIdx <= startIdx {
			continue
		}
		part := sentences[startIdx:endIdx]
		chunks = append(chunks, Chunk{
			Text:          strings.Join(part, " "),
			StartSentence: startIdx,
			EndSentence:   endIdx - 1,
			SentenceCount: len(part),
		})
	}
	return chunks, nil
}

func (c *SemanticChunker) embedBatches(ctx context.Context, texts []string) ([][]float64, error) {
	batch := c.BatchSize
	if batch <= 0 || batch > 100 {
		batch = 100
	}

	out := make([][]float64, 0, len(texts))
	for i := 0; i < len(texts); i += batch {
		end := i + batch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := c.embedder.EmbedStrings(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embedding count mismatch: want %d got %d", end-i, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *SemanticChunker) percentile() float64 {
	if c.BreakpointPercentile <= 0 || c.BreakpointPercentile > 100 {
		return 95
	}
	return c.BreakpointPercentile
}
