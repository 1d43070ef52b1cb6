package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// ParserClient 外部 PDF 解析服务客户端，三步流程：
// 上传 → 轮询任务状态 → 取回 markdown 结果
type ParserClient struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	pollInterval    time.Duration
	maxPollAttempts int
}

// ParseResult JobPages / CacheHit 仅在服务返回任务元数据时非 nil
type ParseResult struct {
	Text     string
	JobPages *int
	CacheHit *bool
}

func NewParserClient(baseURL, apiKey string, pollInterval time.Duration, maxPollAttempts int) *ParserClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.cloud.llamaindex.ai"
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxPollAttempts <= 0 {
		maxPollAttempts = 120
	}
	return &ParserClient{
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(apiKey),
		pollInterval:    pollInterval,
		maxPollAttempts: maxPollAttempts,
	}
}

func (c *ParserClient) Parse(ctx context.Context, data []byte, filename string) (*ParseResult, error) {
	if err := validatePdfHeader(data, filename); err != nil {
		return nil, err
	}
	logPdfDiagnostics(data, filename)

	jobID, err := c.upload(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	zlog.Info("pdf parse job created", zap.String("job_id", jobID), zap.String("filename", filename))

	if err := c.poll(ctx, jobID); err != nil {
		return nil, err
	}

	res := &ParseResult{}
	// 元数据获取失败不阻断主流程，计费退化为按文本长度估算
	if pages, cacheHit, err := c.fetchJobMetadata(ctx, jobID); err != nil {
		zlog.Warn("pdf parse metadata fetch failed", zap.String("job_id", jobID), zap.Error(err))
	} else {
		res.JobPages = pages
		res.CacheHit = cacheHit
	}

	text, err := c.fetchMarkdown(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("parser returned empty result for %s", filename)
	}
	res.Text = text
	return res, nil
}

func (c *ParserClient) upload(ctx context.Context, data []byte, filename string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/parsing/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload failed: %d %s", resp.StatusCode, string(raw))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("upload response decode failed: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("upload response missing job id")
	}
	return out.ID, nil
}

func (c *ParserClient) poll(ctx context.Context, jobID string) error {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/parsing/job/"+jobID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status check failed: %d %s", resp.StatusCode, string(raw))
		}

		var st struct {
			Status       string `json:"status"`
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return fmt.Errorf("status response decode failed: %w", err)
		}

		switch strings.ToUpper(st.Status) {
		case "SUCCESS", "COMPLETED":
			return nil
		case "ERROR", "FAILED":
			code := st.ErrorCode
			if code == "" {
				code = "UNKNOWN_ERROR"
			}
			msg := st.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			return fmt.Errorf("parser job failed %s: %s (job %s)", code, msg, jobID)
		}
	}
	return fmt.Errorf("parser timeout after %d polling attempts", c.maxPollAttempts)
}

func (c *ParserClient) fetchJobMetadata(ctx context.Context, jobID string) (*int, *bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/parsing/job/"+jobID+"/result/json", nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("metadata fetch failed: %d %s", resp.StatusCode, string(raw))
	}

	var out struct {
		JobMetadata struct {
			JobPages      *float64 `json:"job_pages"`
			JobIsCacheHit *bool    `json:"job_is_cache_hit"`
		} `json:"job_metadata"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, err
	}

	var pages *int
	if out.JobMetadata.JobPages != nil {
		p := int(*out.JobMetadata.JobPages)
		pages = &p
	}
	return pages, out.JobMetadata.JobIsCacheHit, nil
}

func (c *ParserClient) fetchMarkdown(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/parsing/job/"+jobID+"/result/markdown", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("result fetch failed: %d %s", resp.StatusCode, string(raw))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", err
		}
		for _, k := range []string{"markdown", "text", "content"} {
			if v, ok := out[k].(string); ok && v != "" {
				return v, nil
			}
		}
		return string(raw), nil
	}
	return string(raw), nil
}

func validatePdfHeader(data []byte, filename string) error {
	if len(data) < 5 {
		return fmt.Errorf("invalid PDF file %s: too short", filename)
	}
	header := string(data[:5])
	if header != "%PDF-" {
		return fmt.Errorf("invalid PDF file: header is %q instead of %%PDF-, file might be corrupted or not a PDF", header)
	}
	return nil
}

// logPdfDiagnostics 结构体检仅用于排障，不拦截任何文件
func logPdfDiagnostics(data []byte, filename string) {
	headLen := len(data)
	if headLen > 8192 {
		headLen = 8192
	}
	head := string(data[:headLen])

	tail := ""
	if len(data) > 100 {
		tail = string(data[len(data)-100:])
	} else {
		tail = string(data)
	}

	zlog.Info("pdf structure diagnostics",
		zap.String("filename", filename),
		zap.Int("size_bytes", len(data)),
		zap.Bool("encrypted", strings.Contains(head, "/Encrypt")),
		zap.Bool("has_eof", strings.Contains(tail, "%%EOF")),
		zap.Bool("has_xref", strings.Contains(head, "xref") || strings.Contains(head, "/XRef")),
		zap.Bool("has_trailer", strings.Contains(head, "trailer")),
		zap.Bool("linearized", strings.Contains(head, "/Linearized")),
		zap.Bool("has_fonts", strings.Contains(head, "/Font")),
	)
}
