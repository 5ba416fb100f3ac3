package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/songcraft/backend/internal/models"
	"github.com/songcraft/backend/pkg/logger"
	"gorm.io/gorm"
)

// Notification kinds emitted by the lifecycle and revision services.
const (
	NotifyPaymentCaptured       = "payment_captured"
	NotifyProjectAccepted       = "project_accepted"
	NotifyStatusAdvanced        = "status_advanced"
	NotifyCancellationRequested = "cancellation_requested"
	NotifyCancellationApproved  = "cancellation_approved"
	NotifyCancellationDenied    = "cancellation_denied"
	NotifyProducerChanged       = "producer_changed"
	NotifyDeadlineExpired       = "deadline_expired"
	NotifyProducerPaid          = "producer_paid"
	NotifyRevisionRequested     = "revision_requested"
	NotifyRevisionDelivered     = "revision_delivered"
	NotifyFeedbackSubmitted     = "feedback_submitted"
	NotifyDailyReport           = "daily_report"
)

// Recipient addresses a notification: a specific user, or the admin channel.
type Recipient struct {
	Role   string `json:"role"`
	UserID uint   `json:"user_id,omitempty"`
}

func recipientCustomer(userID uint) Recipient {
	return Recipient{Role: models.RoleCustomer, UserID: userID}
}

func recipientProducer(userID uint) Recipient {
	return Recipient{Role: models.RoleProducer, UserID: userID}
}

func recipientAdmins() Recipient {
	return Recipient{Role: models.RoleAdmin}
}

// Notifier delivers settlement events to users and the admin channel.
// Implementations must be fire-and-forget: a delivery failure never fails
// the lifecycle transition that produced it.
type Notifier interface {
	Send(kind string, recipient Recipient, payload map[string]interface{})
}

// NotificationService fans settlement events out to email (for the addressed
// user) and to the active chat bots (for the admin channel). Delivery runs
// through the task queue so webhook latency never blocks a request.
type NotificationService struct {
	db    *gorm.DB
	email *EmailService
	queue TaskQueue
}

func NewNotificationService(db *gorm.DB, queue TaskQueue) *NotificationService {
	return &NotificationService{db: db, email: NewEmailService(db), queue: queue}
}

// Send enqueues the event for asynchronous delivery.
func (s *NotificationService) Send(kind string, recipient Recipient, payload map[string]interface{}) {
	task := &NotificationTask{
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
	}
	if err := s.queue.Enqueue(task); err != nil {
		logger.Warn().Str("kind", kind).Err(err).Msg("notification enqueue failed")
	}
}

// Deliver performs the actual delivery of one event. It is the processor
// registered on the worker and the sync queue.
func (s *NotificationService) Deliver(ctx context.Context, task *NotificationTask) error {
	if task.Recipient.UserID != 0 {
		if err := s.deliverEmail(task); err != nil {
			logger.Warn().Str("kind", task.Kind).Uint("user_id", task.Recipient.UserID).
				Err(err).Msg("email delivery failed")
		}
	}

	if task.Recipient.Role == models.RoleAdmin || adminVisible(task.Kind) {
		if err := s.deliverChatBots(task); err != nil {
			logger.Warn().Str("kind", task.Kind).Err(err).Msg("chat bot delivery failed")
		}
	}
	return nil
}

// adminVisible lists the user-addressed kinds that are also mirrored to the
// admin chat channel because they involve money movement.
func adminVisible(kind string) bool {
	switch kind {
	case NotifyCancellationApproved, NotifyProducerChanged, NotifyDeadlineExpired, NotifyProducerPaid:
		return true
	}
	return false
}

func (s *NotificationService) deliverEmail(task *NotificationTask) error {
	var user models.User
	if err := s.db.First(&user, task.Recipient.UserID).Error; err != nil {
		return fmt.Errorf("recipient %d not found: %w", task.Recipient.UserID, err)
	}
	if user.Email == "" {
		return nil
	}
	return s.email.SendSettlementNotification(task, []string{user.Email})
}

func (s *NotificationService) deliverChatBots(task *NotificationTask) error {
	var bots []models.ChatBot
	if err := s.db.Where("is_active = ? AND settlement_notify = ?", true, true).Find(&bots).Error; err != nil {
		return err
	}

	msg := buildChatMessage(task)
	var lastErr error
	for i := range bots {
		if err := s.sendToBot(&bots[i], task, msg); err != nil {
			logger.Warn().Str("bot", bots[i].Name).Err(err).Msg("chat bot send failed")
			lastErr = err
		}
	}
	return lastErr
}

func (s *NotificationService) sendToBot(bot *models.ChatBot, task *NotificationTask, msg string) error {
	switch bot.Type {
	case "wechat_work":
		return s.sendWeCom(bot, msg)
	case "dingtalk":
		return s.sendDingTalk(bot, task, msg)
	case "feishu":
		return s.sendFeishu(bot, msg)
	case "slack":
		return s.sendSlack(bot, msg)
	default:
		return s.sendGenericWebhook(bot, task)
	}
}

var kindTitles = map[string]string{
	NotifyPaymentCaptured:       "Payment captured",
	NotifyProjectAccepted:       "Producer accepted",
	NotifyStatusAdvanced:        "Project advanced",
	NotifyCancellationRequested: "Cancellation requested",
	NotifyCancellationApproved:  "Cancellation approved",
	NotifyCancellationDenied:    "Cancellation denied",
	NotifyProducerChanged:       "Producer reassigned",
	NotifyDeadlineExpired:       "Acceptance deadline expired",
	NotifyProducerPaid:          "Producer payout",
	NotifyRevisionRequested:     "Revision requested",
	NotifyRevisionDelivered:     "Revision delivered",
	NotifyFeedbackSubmitted:     "Feedback submitted",
	NotifyDailyReport:           "Daily settlement report",
}

func buildChatMessage(task *NotificationTask) string {
	title := kindTitles[task.Kind]
	if title == "" {
		title = task.Kind
	}

	msg := fmt.Sprintf("**%s**\n", title)
	if v, ok := task.Payload["title"]; ok {
		msg += fmt.Sprintf("\n**Project**: %v", v)
	}
	if v, ok := task.Payload["project_id"]; ok {
		msg += fmt.Sprintf(" (#%v)", v)
	}
	for _, field := range []struct{ key, label string }{
		{"amount_cents", "Amount"},
		{"refund_cents", "Refund"},
		{"payout_cents", "Payout"},
		{"refund_percent", "Refund %"},
		{"recommended_percent", "Recommended refund %"},
		{"status", "Status"},
		{"reason", "Reason"},
	} {
		if v, ok := task.Payload[field.key]; ok {
			msg += fmt.Sprintf("\n**%s**: %v", field.label, v)
		}
	}
	if manual, ok := task.Payload["manual_required"].(bool); ok && manual {
		msg += "\n⚠️ **Manual payout required** — producer account is not verified"
	}
	return msg
}

func (s *NotificationService) sendWeCom(bot *models.ChatBot, msg string) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"content": msg,
		},
	}
	return s.postJSON(bot.Webhook, payload)
}

func (s *NotificationService) sendDingTalk(bot *models.ChatBot, task *NotificationTask, msg string) error {
	webhookURL := bot.Webhook
	if bot.Secret != "" {
		timestamp := time.Now().UnixMilli()
		sign := dingTalkSign(timestamp, bot.Secret)
		webhookURL = fmt.Sprintf("%s&timestamp=%d&sign=%s", bot.Webhook, timestamp, url.QueryEscape(sign))
	}

	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": fmt.Sprintf("SongCraft: %s", kindTitles[task.Kind]),
			"text":  msg,
		},
	}
	return s.postJSON(webhookURL, payload)
}

func dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (s *NotificationService) sendFeishu(bot *models.ChatBot, msg string) error {
	if bot.Secret != "" {
		timestamp := time.Now().Unix()
		payload := map[string]interface{}{
			"timestamp": fmt.Sprintf("%d", timestamp),
			"sign":      feishuSign(timestamp, bot.Secret),
			"msg_type":  "text",
			"content": map[string]string{
				"text": msg,
			},
		}
		return s.postJSON(bot.Webhook, payload)
	}
	payload := map[string]interface{}{
		"msg_type": "text",
		"content": map[string]string{
			"text": msg,
		},
	}
	return s.postJSON(bot.Webhook, payload)
}

func feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (s *NotificationService) sendSlack(bot *models.ChatBot, msg string) error {
	payload := map[string]interface{}{
		"text": msg,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": msg,
				},
			},
		},
	}
	return s.postJSON(bot.Webhook, payload)
}

func (s *NotificationService) sendGenericWebhook(bot *models.ChatBot, task *NotificationTask) error {
	payload := map[string]interface{}{
		"kind":      task.Kind,
		"recipient": task.Recipient,
		"payload":   task.Payload,
	}
	return s.postJSON(bot.Webhook, payload)
}

func (s *NotificationService) postJSON(webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
