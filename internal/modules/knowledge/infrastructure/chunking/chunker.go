package chunking

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Chunk 一个切片及其在原文中的句子范围
type Chunk struct {
	Text          string
	StartSentence int
	EndSentence   int
	SentenceCount int
}

// Chunker 切片策略接口，fixed / semantic / recursive 三种实现可配置切换
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]Chunk, error)
}

// SplitSentences 按英文句子边界切分：句末标点 + 空白 + 大写字母开头
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		if !unicode.IsUpper(runes[j]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CosineSimilarity dot(a,b) / (|a|*|b|)
func CosineSimilarity(a, b []float64) float64 {
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

// Percentile 升序排序后取 ceil(p/100*n)-1 位置的值，下界钳到 0
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
