package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	promptImage      = "You turn images into text. If it is a photo of a document, transcribe it. If it is not a document, describe it."
	promptPdf        = "You transform PDF files into text."
	promptHtml       = "You transform content into markdown."
	instructionPdf   = "Extract the text from the PDF and print it without explaining you'll do so."
	instructionHtml  = "Extract the text and print it in a markdown format without explaining you'll do so."
	modelMaxAttempts = 3
)

var supportedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// FileDescriptor 待抽取文件及其归属信息
type FileDescriptor struct {
	StorageID string
	Filename  string
	MimeType  string
	OrgID     string
	Bytes     []byte
}

// Extractor 按 MIME 分发的多级内容抽取器。
// PDF 走解析服务 → 视觉模型 → 结构兜底的三级降级链
type Extractor struct {
	chatModel        model.BaseChatModel
	parser           *ParserClient
	usageRepo        repository.UsageRepository
	modelName        string
	provider         string
	maxFallbackBytes int64
}

func NewExtractor(chatModel model.BaseChatModel, parser *ParserClient, usageRepo repository.UsageRepository, provider, modelName string, maxFallbackBytes int64) *Extractor {
	if maxFallbackBytes <= 0 {
		maxFallbackBytes = 1 << 20
	}
	return &Extractor{
		chatModel:        chatModel,
		parser:           parser,
		usageRepo:        usageRepo,
		provider:         provider,
		modelName:        modelName,
		maxFallbackBytes: maxFallbackBytes,
	}
}

func (e *Extractor) Extract(ctx context.Context, fd FileDescriptor) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(fd.MimeType))

	if _, ok := supportedImageTypes[mime]; ok {
		return e.extractImage(ctx, fd)
	}
	if strings.Contains(mime, "pdf") {
		return e.extractPdf(ctx, fd)
	}
	if strings.Contains(mime, "text") {
		return e.extractTextFile(ctx, fd, mime)
	}
	return "", xerr.New(xerr.BadRequest, fmt.Sprintf("unsupported MIME type: %s", fd.MimeType))
}

func (e *Extractor) extractTextFile(ctx context.Context, fd FileDescriptor, mime string) (string, error) {
	text := string(fd.Bytes)
	if mime == "text/plain" {
		return text, nil
	}
	if e.chatModel == nil {
		return text, nil
	}

	msgs := []*schema.Message{
		schema.SystemMessage(promptHtml),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: text},
				{Type: schema.ChatMessagePartTypeText, Text: instructionHtml},
			},
		},
	}
	resp, err := e.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	e.recordTokens(ctx, fd.OrgID, "extract_text_html", resp)
	return resp.Content, nil
}

func (e *Extractor) extractImage(ctx context.Context, fd FileDescriptor) (string, error) {
	if e.chatModel == nil {
		return "", xerr.New(xerr.InternalServerError, "vision model not configured")
	}

	msgs := []*schema.Message{
		schema.SystemMessage(promptImage),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL: dataURL(fd.MimeType, fd.Bytes),
					},
				},
			},
		},
	}
	resp, err := e.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	e.recordTokens(ctx, fd.OrgID, "extract_image_text", resp)
	return resp.Content, nil
}

func (e *Extractor) extractPdf(ctx context.Context, fd FileDescriptor) (string, error) {
	if e.parser == nil {
		zlog.Warn("pdf parser not configured, using model fallback", zap.String("filename", fd.Filename))
		return e.pdfModelFallback(ctx, fd)
	}

	res, err := e.parser.Parse(ctx, fd.Bytes, fd.Filename)
	if err == nil {
		e.recordParserUsage(ctx, fd.OrgID, res)
		return res.Text, nil
	}

	zlog.Warn("pdf parser failed", zap.String("filename", fd.Filename), zap.Error(err))

	switch classifyParserError(err) {
	case errClassTokenLimit:
		// 文档对解析服务太复杂，模型兜底也会失败，直接走结构抽取
		return BasicPdfText(fd.Bytes, fd.Filename), nil
	case errClassOutOfCredits:
		return "", xerr.New(xerr.PaymentRequired, "PDF parser is out of credits. Update your parser API key and retry processing.")
	case errClassInvalidKey:
		return "", xerr.New(xerr.Unauthorized, "PDF parser API key is invalid. Update the key and retry processing.")
	case errClassRateLimited:
		return "", xerr.New(xerr.TooManyRequests, "PDF parser is rate-limiting requests. Please wait a bit and retry processing.")
	}

	text, ferr := e.pdfModelFallback(ctx, fd)
	if ferr != nil {
		zlog.Warn("pdf model fallback failed, using basic extraction", zap.String("filename", fd.Filename), zap.Error(ferr))
		return BasicPdfText(fd.Bytes, fd.Filename), nil
	}
	return text, nil
}

func (e *Extractor) pdfModelFallback(ctx context.Context, fd FileDescriptor) (string, error) {
	if e.chatModel == nil {
		return "", fmt.Errorf("chat model not configured for pdf fallback")
	}
	if int64(len(fd.Bytes)) > e.maxFallbackBytes {
		return "", fmt.Errorf("PDF too large for fallback extraction (%d bytes). Configure the parser API key or use a smaller PDF.", len(fd.Bytes))
	}

	msgs := []*schema.Message{
		schema.SystemMessage(promptPdf),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{
					Type: schema.ChatMessagePartTypeFileURL,
					FileURL: &schema.ChatMessageFileURL{
						URL:      dataURL("application/pdf", fd.Bytes),
						MIMEType: "application/pdf",
						Name:     fd.Filename,
					},
				},
				{Type: schema.ChatMessagePartTypeText, Text: instructionPdf},
			},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= modelMaxAttempts; attempt++ {
		resp, err := e.chatModel.Generate(ctx, msgs)
		if err == nil {
			e.recordTokens(ctx, fd.OrgID, "extract_pdf_fallback", resp)
			return resp.Content, nil
		}
		lastErr = err

		if strings.Contains(err.Error(), "out of memory") {
			return "", fmt.Errorf("PDF too large for fallback extraction: %w", err)
		}
		if attempt < modelMaxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			continue
		}
	}
	return "", fmt.Errorf("failed to extract PDF after %d attempts: %w", modelMaxAttempts, lastErr)
}

func (e *Extractor) recordParserUsage(ctx context.Context, orgID string, res *ParseResult) {
	if e.usageRepo == nil || orgID == "" || res == nil {
		return
	}

	var units int64
	kind := file.UsagePdfParseTextLength
	if res.JobPages != nil {
		kind = file.UsagePdfParsePages
		if res.CacheHit != nil && *res.CacheHit {
			units = 0
		} else {
			units = int64(*res.JobPages)
		}
	} else {
		units = int64((len(res.Text) + 3) / 4)
	}
	if units <= 0 {
		return
	}

	unit := "tokens"
	if kind == file.UsagePdfParsePages {
		unit = "pages"
	}
	meta, _ := json.Marshal(map[string]string{"provider": "llamaparse", "model": "llamaparse"})
	rec := &file.UsageRecord{
		OrgId:        orgID,
		Kind:         kind,
		Amount:       units,
		Unit:         unit,
		MetadataJson: string(meta),
		CreatedAt:    time.Now(),
	}
	if err := e.usageRepo.Record(ctx, rec); err != nil {
		zlog.Warn("usage record failed", zap.String("kind", kind), zap.Error(err))
	}
}

func (e *Extractor) recordTokens(ctx context.Context, orgID, kind string, resp *schema.Message) {
	if e.usageRepo == nil || orgID == "" || resp == nil {
		return
	}

	prompt, completion, total := 0, 0, 0
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		prompt = resp.ResponseMeta.Usage.PromptTokens
		completion = resp.ResponseMeta.Usage.CompletionTokens
		total = resp.ResponseMeta.Usage.TotalTokens
	}
	if total == 0 {
		total = (len(resp.Content) + 3) / 4
	}
	if total <= 0 {
		return
	}

	meta, _ := json.Marshal(map[string]any{
		"provider":          e.provider,
		"model":             e.modelName,
		"prompt_tokens":     prompt,
		"completion_tokens": completion,
	})
	rec := &file.UsageRecord{
		OrgId:        orgID,
		Kind:         kind,
		Amount:       int64(total),
		Unit:         "tokens",
		MetadataJson: string(meta),
		CreatedAt:    time.Now(),
	}
	if err := e.usageRepo.Record(ctx, rec); err != nil {
		zlog.Warn("usage record failed", zap.String("kind", kind), zap.Error(err))
	}
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
