package service

import (
	"context"
	"strings"

	"EchoDesk/internal/modules/knowledge/application/dto/respond"
	"EchoDesk/internal/modules/knowledge/domain/repository"
)

// UsageService 组织用量汇总，给计费面板用
type UsageService struct {
	usageRepo repository.UsageRepository
}

func NewUsageService(usageRepo repository.UsageRepository) *UsageService {
	return &UsageService{usageRepo: usageRepo}
}

func (s *UsageService) Totals(ctx context.Context, orgID string) (*respond.UsageRespond, error) {
	totals, err := s.usageRepo.TotalByKind(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return nil, err
	}
	return &respond.UsageRespond{Totals: totals}, nil
}
