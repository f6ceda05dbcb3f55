package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher доставляет уведомление подключённым клиентам (WebSocket).
type Pusher interface {
	Push(userID uuid.UUID, event string, data any)
}

// NotificationService сохраняет уведомления и рассылает их по WebSocket.
// Реализует Notifier: вся работа уходит в фоновую горутину, ошибки
// логируются и никогда не доходят до вызывающей операции.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
}

func NewNotificationService(repo NotificationRepository, pusher Pusher) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher}
}

// Notify отправляет событие пользователю fire-and-forget.
func (s *NotificationService) Notify(userID uuid.UUID, event string, data any) {
	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		payload, err := json.Marshal(map[string]any{
			"event": event,
			"data":  data,
		})
		if err != nil {
			logger.Log.WithError(err).WithField("event", event).
				Error("notification: не удалось сериализовать payload")
			return
		}

		notification := &models.Notification{
			UserID:  userID,
			Payload: payload,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			logger.Log.WithError(err).WithField("event", event).
				Error("notification: не удалось сохранить уведомление")
		}

		if s.pusher != nil {
			s.pusher.Push(userID, event, data)
		}
	})
}

// ListNotifications возвращает уведомления пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead помечает уведомление прочитанным.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, id)
}

// CountUnread возвращает число непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
