package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/application/dto/respond"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/ws"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

type notificationPush struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
	Kind           string `json:"kind"`
	FileName       string `json:"file_name,omitempty"`
	Message        string `json:"message,omitempty"`
}

// NotificationService 摄取通知的查询、推送与补投。
// 在线客户端即时收到 ws 推送，离线的由 watchdog 在重连后补投
type NotificationService struct {
	notifRepo repository.NotificationRepository
	hub       *ws.Hub
}

func NewNotificationService(notifRepo repository.NotificationRepository, hub *ws.Hub) *NotificationService {
	return &NotificationService{notifRepo: notifRepo, hub: hub}
}

func (s *NotificationService) List(ctx context.Context, orgID string, limit int) ([]respond.NotificationRespond, error) {
	notifs, err := s.notifRepo.ListByOrg(ctx, strings.TrimSpace(orgID), limit)
	if err != nil {
		return nil, err
	}
	out := make([]respond.NotificationRespond, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, respond.NotificationRespond{
			NotificationID: n.NotificationId,
			Kind:           n.Kind,
			FileName:       n.FileName,
			Message:        n.Message,
			Status:         n.Status,
			CreatedAt:      n.CreatedAt,
		})
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, orgID, notificationID string) error {
	return s.notifRepo.MarkRead(ctx, strings.TrimSpace(orgID), strings.TrimSpace(notificationID))
}

// Process finalize_notification 任务：单条通知的定向补投
func (s *NotificationService) Process(ctx context.Context, task *file.IngestTask) error {
	var p file.FinalizeNotifyPayload
	if err := json.Unmarshal([]byte(task.PayloadJson), &p); err != nil {
		return fmt.Errorf("invalid finalize_notification payload: %w", err)
	}
	if strings.TrimSpace(p.NotificationID) == "" {
		return errors.New("finalize_notification payload missing notification_id")
	}

	notifs, err := s.notifRepo.ClaimPending(ctx, 100)
	if err != nil {
		return err
	}
	for i := range notifs {
		if notifs[i].NotificationId == p.NotificationID {
			s.deliver(ctx, &notifs[i])
			return nil
		}
	}
	return nil
}

// RunWatchdog 周期补投：凡是 pending 的通知都再推一次，
// 推到在线客户端即标记 delivered
func (s *NotificationService) RunWatchdog(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		notifs, err := s.notifRepo.ClaimPending(ctx, 100)
		if err != nil {
			zlog.Warn("notification watchdog claim failed", zap.Error(err))
			continue
		}
		for i := range notifs {
			s.deliver(ctx, &notifs[i])
		}
	}
}

func (s *NotificationService) deliver(ctx context.Context, n *file.Notification) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(notificationPush{
		Type:           "notification",
		NotificationID: n.NotificationId,
		Kind:           n.Kind,
		FileName:       n.FileName,
		Message:        n.Message,
	})
	if err != nil {
		return
	}
	if !s.hub.Broadcast(n.OrgId, payload) {
		// 没有在线客户端，留给下一轮
		return
	}
	if err := s.notifRepo.MarkDelivered(ctx, n.NotificationId); err != nil {
		zlog.Warn("mark notification delivered failed",
			zap.String("notification_id", n.NotificationId), zap.Error(err))
	}
}
