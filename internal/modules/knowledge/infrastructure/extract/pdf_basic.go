package extract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	streamRe = regexp.MustCompile(`(?s)stream\s*(.*?)\s*endstream`)
	parenRe  = regexp.MustCompile(`\((.*?)\)`)
)

// BasicPdfText 不依赖任何外部服务的兜底抽取：扫描 stream 块里的
// 括号文本指令并反转义。质量有限但对任意大小的 PDF 都不会失败
func BasicPdfText(data []byte, filename string) string {
	text := basicPdfScan(data)
	if strings.TrimSpace(text) != "" {
		return text
	}
	sizeMB := float64(len(data)) / 1024 / 1024
	return fmt.Sprintf("[Document: %s]\n\nUnable to extract text content. This PDF may contain scanned images or be encrypted.\nPage count: Unknown\nSize: %.2f MB", filename, sizeMB)
}

func basicPdfScan(data []byte) string {
	var chunks []string
	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		if len(m) < 2 {
			continue
		}
		for _, tm := range parenRe.FindAllSubmatch(m[1], -1) {
			if len(tm) < 2 {
				continue
			}
			s := unescapePdfString(string(tm[1]))
			if strings.TrimSpace(s) != "" {
				chunks = append(chunks, s)
			}
		}
	}
	return strings.Join(chunks, " ")
}

func unescapePdfString(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
		`\(`, "(",
		`\)`, ")",
		`\\`, `\`,
	)
	return r.Replace(s)
}
