package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hello world. This is fine! Right? yes it is")
	require.Len(t, got, 3)
	assert.Equal(t, "Hello world.", got[0])
	assert.Equal(t, "This is fine!", got[1])
	// 小写开头不算新句子
	assert.Equal(t, "Right? yes it is", got[2])
}

func TestSplitSentencesEmpty(t *testing.T) {
	assert.Nil(t, SplitSentences(""))
	assert.Nil(t, SplitSentences("   \n\t "))
}

func TestSplitSentencesNoTerminator(t *testing.T) {
	got := SplitSentences("just one run of text without punctuation")
	require.Len(t, got, 1)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 0}))
}

func TestPercentile(t *testing.T) {
	values := []float64{0.1, 0.5, 0.9}
	assert.InDelta(t, 0.9, Percentile(values, 95), 1e-9)
	assert.InDelta(t, 0.5, Percentile(values, 50), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 95))
}

func TestFixedChunkerSingleChunk(t *testing.T) {
	c := NewFixedChunker(2000, 200)
	chunks, err := c.Chunk(context.Background(), "Short text. Two sentences here.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].SentenceCount)
	assert.Equal(t, 0, chunks[0].StartSentence)
	assert.Equal(t, 1, chunks[0].EndSentence)
}

func TestFixedChunkerEmpty(t *testing.T) {
	c := NewFixedChunker(100, 10)
	chunks, err := c.Chunk(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestFixedChunkerSnapsToSentenceBoundary(t *testing.T) {
	c := NewFixedChunker(22, 0)
	text := "Aaaa bbbb cccc dddd. Eeee ffff gggg hhhh."
	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Aaaa bbbb cccc dddd.", chunks[0].Text)
	assert.Equal(t, "Eeee ffff gggg hhhh.", chunks[1].Text)
}

func TestFixedChunkerCoversAllText(t *testing.T) {
	c := NewFixedChunker(50, 10)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	joined := ""
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Text)
		joined += ch.Text + " "
	}
	// 重叠会重复词语，但原文内容不能丢
	assert.Contains(t, joined, "quick brown fox")
	assert.GreaterOrEqual(t, len(joined), len(strings.TrimSpace(text))/2)
}

func TestNewFixedChunkerDefaults(t *testing.T) {
	c := NewFixedChunker(0, -5)
	assert.Equal(t, 2000, c.ChunkSize)
	assert.Equal(t, 0, c.Overlap)

	c = NewFixedChunker(100, 150)
	assert.Equal(t, 20, c.Overlap)
}

// scriptedEmbedder 按句子内容返回固定向量，话题 A 与话题 B 正交
type scriptedEmbedder struct {
	vectors map[string][]float64
	fallbak []float64
}

func (s *scriptedEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, txt := range texts {
		if v, ok := s.vectors[txt]; ok {
			out[i] = v
		} else {
			out[i] = s.fallbak
		}
	}
	return out, nil
}

func TestSemanticChunkerBreaksOnTopicShift(t *testing.T) {
	emb := &scriptedEmbedder{
		vectors: map[string][]float64{
			"Cats are great.":     {1, 0},
			"Dogs are loyal.":     {1, 0},
			"Taxes rose in May.":  {0, 1},
			"Budgets were tight.": {0, 1},
		},
		fallbak: []float64{1, 0},
	}
	c := NewSemanticChunker(emb)
	c.BufferSize = 0

	chunks, err := c.Chunk(context.Background(), "Cats are great. Dogs are loyal. Taxes rose in May. Budgets were tight.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Cats are great. Dogs are loyal.", chunks[0].Text)
	assert.Equal(t, "Taxes rose in May. Budgets were tight.", chunks[1].Text)
	assert.Equal(t, 0, chunks[0].StartSentence)
	assert.Equal(t, 1, chunks[0].EndSentence)
	assert.Equal(t, 2, chunks[1].StartSentence)
	assert.Equal(t, 3, chunks[1].EndSentence)
}

func TestSemanticChunkerSingleSentence(t *testing.T) {
	c := NewSemanticChunker(&scriptedEmbedder{fallbak: []float64{1, 0}})
	chunks, err := c.Chunk(context.Background(), "Only one sentence here")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].SentenceCount)
}

func TestSemanticChunkerNilEmbedder(t *testing.T) {
	c := &SemanticChunker{}
	_, err := c.Chunk(context.Background(), "A. B.")
	assert.Error(t, err)
}

func TestSemanticChunkerSplitsOversizedChunk(t *testing.T) {
	emb := &scriptedEmbedder{fallbak: []float64{1, 0}}
	c := NewSemanticChunker(emb)
	c.BufferSize = 0
	c.MaxChunkSize = 40

	// 同一话题的四个句子会先聚成一个超限切片，再按句子均分
	chunks, err := c.Chunk(context.Background(), "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu. Nu xi omicron pi.")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 60)
	}
}
