package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyParserError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errorClass
	}{
		{"nil", nil, errClassTransient},
		{"plain failure", errors.New("connection reset by peer"), errClassTransient},
		{"token size", errors.New("document token size exceeds the maximum limit for this plan"), errClassTokenLimit},
		{"status 402", errors.New("parser job failed: status 402"), errClassOutOfCredits},
		{"credits text", errors.New("You are out of credits, please top up"), errClassOutOfCredits},
		{"insufficient credits", errors.New("insufficient credits remaining"), errClassOutOfCredits},
		{"status 401", errors.New("request failed with 401"), errClassInvalidKey},
		{"status 403", errors.New("403 Forbidden"), errClassInvalidKey},
		{"invalid key text", errors.New("invalid api key supplied"), errClassInvalidKey},
		{"status 429", errors.New("upstream returned 429"), errClassRateLimited},
		{"rate limit text", errors.New("rate limit exceeded, slow down"), errClassRateLimited},
		{"too many requests", errors.New("Too Many Requests"), errClassRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyParserError(tc.err))
		})
	}
}

func TestClassifyParserErrorTokenLimitWinsOverStatus(t *testing.T) {
	// token 超限即便伴随 4xx 状态也按超限处理，走本地兜底而不是上抛
	err := errors.New("429: token size exceeds the maximum limit")
	assert.Equal(t, errClassTokenLimit, classifyParserError(err))
}
