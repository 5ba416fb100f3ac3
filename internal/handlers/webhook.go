package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/songcraft/backend/internal/services"
	"github.com/songcraft/backend/pkg/response"
	"gorm.io/gorm"
)

// WebhookHandler receives payment gateway callbacks. The gateway signs the
// raw request body with HMAC-SHA256 and sends the hex digest in
// X-Webhook-Signature as "sha256=<hex>".
type WebhookHandler struct {
	projectService *services.ProjectService
	lifecycle      *services.ProjectLifecycleService
	secret         string
}

func NewWebhookHandler(db *gorm.DB, lifecycle *services.ProjectLifecycleService, secret string) *WebhookHandler {
	return &WebhookHandler{
		projectService: services.NewProjectService(db),
		lifecycle:      lifecycle,
		secret:         secret,
	}
}

type paymentWebhookPayload struct {
	Event            string `json:"event"`
	ProjectReference string `json:"project_reference"`
	PaymentReference string `json:"payment_reference"`
	AmountCents      int64  `json:"amount_cents"`
}

// VerifyWebhookSignature checks an HMAC-SHA256 signature over the raw body.
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimPrefix(signature, "sha256=")), []byte(expectedMAC))
}

// HandlePayment processes payment.captured events from the gateway.
// POST /api/webhooks/payment
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if h.secret != "" && !VerifyWebhookSignature(h.secret, body, signature) {
		services.LogWarning("Webhook", "InvalidSignature", "Invalid payment webhook signature", nil, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"event_header": c.GetHeader("X-Webhook-Event"),
		})
		response.Unauthorized(c, "invalid webhook signature")
		return
	}

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		response.BadRequest(c, "invalid payload: "+err.Error())
		return
	}

	eventType := payload.Event
	if eventType == "" {
		eventType = c.GetHeader("X-Webhook-Event")
	}
	if eventType != "payment.captured" {
		// Other gateway events carry nothing we act on; acknowledge them so
		// the gateway stops retrying.
		response.Success(c, gin.H{"message": "event ignored", "event": eventType})
		return
	}

	if payload.ProjectReference == "" || payload.PaymentReference == "" {
		response.BadRequest(c, "project_reference and payment_reference are required")
		return
	}
	if payload.AmountCents <= 0 {
		response.BadRequest(c, "amount_cents must be positive")
		return
	}

	project, err := h.projectService.GetByReference(payload.ProjectReference)
	if err != nil {
		services.LogWarning("Webhook", "ProjectNotFound", "Payment webhook for unknown project: "+payload.ProjectReference, nil, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"project_reference": payload.ProjectReference,
			"payment_reference": payload.PaymentReference,
		})
		respondError(c, err)
		return
	}

	if err := h.lifecycle.CaptureCompleted(c.Request.Context(), project.ID, payload.PaymentReference, payload.AmountCents); err != nil {
		services.LogError("Webhook", "CaptureFailed", "Failed to apply payment capture: "+err.Error(), nil, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"project_id":        project.ID,
			"payment_reference": payload.PaymentReference,
		})
		respondError(c, err)
		return
	}

	services.LogInfo("Webhook", "PaymentCaptured", "Payment capture applied", nil, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
		"project_id":        project.ID,
		"payment_reference": payload.PaymentReference,
		"amount_cents":      payload.AmountCents,
	})
	response.Success(c, gin.H{"message": "payment captured", "project_id": project.ID})
}
