package extract

import (
	"regexp"
	"strings"
)

// 解析服务错误分级。凭证与配额类错误直接上抛给用户，
// token 超限跳过模型兜底，其余错误走降级链
type errorClass int

const (
	errClassTransient errorClass = iota
	errClassOutOfCredits
	errClassInvalidKey
	errClassRateLimited
	errClassTokenLimit
)

var statusCodeRe = regexp.MustCompile(`\b(401|402|403|429)\b`)

func classifyParserError(err error) errorClass {
	if err == nil {
		return errClassTransient
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	status := ""
	if m := statusCodeRe.FindString(msg); m != "" {
		status = m
	}

	if strings.Contains(msg, "token size") || strings.Contains(msg, "exceeds the maximum limit") {
		return errClassTokenLimit
	}

	if status == "402" ||
		strings.Contains(lower, "out of credits") ||
		strings.Contains(lower, "insufficient credits") ||
		strings.Contains(lower, "payment required") ||
		strings.Contains(lower, "credits exhausted") ||
		strings.Contains(lower, "no credits") {
		return errClassOutOfCredits
	}

	if status == "401" || status == "403" ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid token") ||
		strings.Contains(lower, "forbidden") {
		return errClassInvalidKey
	}

	if status == "429" ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") {
		return errClassRateLimited
	}

	return errClassTransient
}
