package chunking

import (
	"context"
	"strings"
)

// FixedChunker 固定窗口 + 重叠切片。窗口末尾落在目标大小 70% 之后的
// 句号或换行处时回退到该边界，避免句子被拦腰截断
type FixedChunker struct {
	ChunkSize int
	Overlap   int
}

func NewFixedChunker(size, overlap int) *FixedChunker {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &FixedChunker{ChunkSize: size, Overlap: overlap}
}

var _ Chunker = (*FixedChunker)(nil)

// Chunk 基于 rune 数量切分，保证多字节字符不会被截断
func (c *FixedChunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Chunk{}, nil
	}

	runes := []rune(text)
	total := len(runes)

	if total <= c.ChunkSize {
		n := len(SplitSentences(text))
		if n == 0 {
			n = 1
		}
		return []Chunk{{Text: text, StartSentence: 0, EndSentence: n - 1, SentenceCount: n}}, nil
	}

	var chunks []Chunk
	sentBase := 0
	start := 0
	for start < total {
		end := start + c.ChunkSize
		if end > total {
			end = total
		}

		if end < total {
			// 从窗口末尾向前找最近的句子或段落边界
			breakAt := -1
			for i := end - start - 1; i >= 1; i-- {
				if runes[start+i] == '\n' {
					breakAt = i
					break
				}
				if runes[start+i] == ' ' && runes[start+i-1] == '.' {
					breakAt = i - 1
					break
				}
			}
			if breakAt > int(float64(c.ChunkSize)*0.7) {
				end = start + breakAt + 1
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			n := len(SplitSentences(piece))
			if n == 0 {
				n = 1
			}
			chunks = append(chunks, Chunk{
				Text:          piece,
				StartSentence: sentBase,
				EndSentence:   sentBase + n - 1,
				SentenceCount: n,
			})
			sentBase += n
		}

		if end == total {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}
