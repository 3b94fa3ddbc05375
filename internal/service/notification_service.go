package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"villaops/internal/domain"
	"villaops/internal/events"
	"villaops/internal/metrics"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

// NotificationService stores staff notifications and delivers them over
// Telegram when the staff member has a linked chat.
type NotificationService struct {
	repo           domain.Repository
	publisher      domain.ChangePublisher
	sender         domain.MessageSender
	managerChatIDs []int64
	logger         *zerolog.Logger
}

func NewNotificationService(
	repo domain.Repository,
	publisher domain.ChangePublisher,
	sender domain.MessageSender,
	managerChatIDs []int64,
	logger *zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		repo:           repo,
		publisher:      publisher,
		sender:         sender,
		managerChatIDs: managerChatIDs,
		logger:         orNop(logger),
	}
}

// Notify stores a notification for staffID and tries to deliver it. A failed
// delivery is recorded on the notification and is not returned as an error.
func (s *NotificationService) Notify(ctx context.Context, staffID int64, title, body string) (*models.Notification, error) {
	if strings.TrimSpace(title) == "" {
		return nil, validationError("notification title is required")
	}
	staff, err := s.repo.GetStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}

	n := &models.Notification{
		StaffID: staffID,
		Channel: models.ChannelInApp,
		Title:   title,
		Body:    body,
	}
	telegram := staff.TelegramChatID != 0 && s.sender != nil
	if telegram {
		n.Channel = models.ChannelTelegram
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	if telegram {
		s.deliver(ctx, n, staff.TelegramChatID)
	} else {
		metrics.IncNotification(n.Channel, "stored")
	}

	if s.publisher != nil {
		s.publisher.PublishNotification(events.OpAdded, n)
	}
	return n, nil
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification, chatID int64) {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Body)
	sendErr := s.sender.SendMessage(ctx, chatID, text)

	var errMsg string
	result := "sent"
	if sendErr != nil {
		errMsg = sendErr.Error()
		result = "failed"
		s.logger.Warn().Err(sendErr).Int64("staff_id", n.StaffID).Int64("notification_id", n.ID).Msg("telegram delivery failed")
	}
	metrics.IncNotification(n.Channel, result)

	if err := s.repo.MarkNotificationSent(ctx, n.ID, errMsg); err != nil {
		s.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("failed to record delivery")
		return
	}
	if sendErr == nil {
		now := time.Now()
		n.SentAt = &now
	}
	n.Error = errMsg
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	return s.repo.MarkNotificationRead(ctx, id)
}

func (s *NotificationService) List(ctx context.Context, staffID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, staffID, unreadOnly, limit)
}

// NotifyManagers notifies every active manager and the configured manager
// chats. It returns how many deliveries were attempted.
func (s *NotificationService) NotifyManagers(ctx context.Context, title, body string) (int, error) {
	managers, err := s.repo.ListStaff(ctx, models.RoleManager, true)
	if err != nil {
		return 0, err
	}

	var errs []error
	count := 0
	notified := make(map[int64]bool)
	for _, m := range managers {
		if _, err := s.Notify(ctx, m.ID, title, body); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
		if m.TelegramChatID != 0 {
			notified[m.TelegramChatID] = true
		}
	}

	if s.sender != nil {
		text := fmt.Sprintf("*%s*\n%s", title, body)
		for _, chatID := range s.managerChatIDs {
			if notified[chatID] {
				continue
			}
			count++
			if err := s.sender.SendMessage(ctx, chatID, text); err != nil {
				metrics.IncNotification(models.ChannelTelegram, "failed")
				errs = append(errs, fmt.Errorf("manager chat %d: %w", chatID, err))
				continue
			}
			metrics.IncNotification(models.ChannelTelegram, "sent")
		}
	}
	return count, errors.Join(errs...)
}

// SendDailyDigest sends every staff member the list of their jobs on day.
func (s *NotificationService) SendDailyDigest(ctx context.Context, day time.Time) (int, error) {
	start := models.DateOnly(day)
	jobs, err := s.repo.ListJobs(ctx, models.JobFilter{From: start, To: start.AddDate(0, 0, 1)})
	if err != nil {
		return 0, err
	}

	byStaff := make(map[int64][]*models.Job)
	var order []int64
	for _, j := range jobs {
		if j.StaffID == nil || !j.IsActive() {
			continue
		}
		if _, ok := byStaff[*j.StaffID]; !ok {
			order = append(order, *j.StaffID)
		}
		byStaff[*j.StaffID] = append(byStaff[*j.StaffID], j)
	}

	var errs []error
	sent := 0
	for _, staffID := range order {
		var b strings.Builder
		for _, j := range byStaff[staffID] {
			fmt.Fprintf(&b, "%s-%s %s\n", j.ScheduledStart.Format("15:04"), j.ScheduledEnd.Format("15:04"), j.Title)
		}
		title := fmt.Sprintf("Jobs for %s", start.Format(models.DateLayout))
		if _, err := s.Notify(ctx, staffID, title, strings.TrimSuffix(b.String(), "\n")); err != nil {
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
