package services

import (
	"strings"
	"testing"
)

func TestBuildChatMessage(t *testing.T) {
	task := &NotificationTask{
		Kind:      NotifyProducerPaid,
		Recipient: recipientProducer(20),
		Payload: map[string]interface{}{
			"title":        "Wedding song",
			"project_id":   uint(1),
			"payout_cents": int64(8500),
		},
	}

	msg := buildChatMessage(task)
	for _, want := range []string{"Producer payout", "Wedding song", "(#1)", "**Payout**: 8500"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildChatMessage_ManualRequired(t *testing.T) {
	task := &NotificationTask{
		Kind:    NotifyProducerPaid,
		Payload: map[string]interface{}{"manual_required": true},
	}
	if !strings.Contains(buildChatMessage(task), "Manual payout required") {
		t.Error("manual_required flag must surface in the message")
	}

	task.Payload["manual_required"] = false
	if strings.Contains(buildChatMessage(task), "Manual payout required") {
		t.Error("false flag must not surface")
	}
}

func TestBuildChatMessage_UnknownKind(t *testing.T) {
	task := &NotificationTask{Kind: "something_new", Payload: map[string]interface{}{}}
	if !strings.Contains(buildChatMessage(task), "something_new") {
		t.Error("unknown kinds fall back to the raw kind string")
	}
}

func TestAdminVisible(t *testing.T) {
	visible := []string{
		NotifyCancellationApproved,
		NotifyProducerChanged,
		NotifyDeadlineExpired,
		NotifyProducerPaid,
	}
	for _, kind := range visible {
		if !adminVisible(kind) {
			t.Errorf("adminVisible(%q) = false, want true", kind)
		}
	}
	for _, kind := range []string{NotifyPaymentCaptured, NotifyRevisionRequested} {
		if adminVisible(kind) {
			t.Errorf("adminVisible(%q) = true, want false", kind)
		}
	}
}

func TestDingTalkSign_Deterministic(t *testing.T) {
	a := dingTalkSign(1700000000000, "secret")
	b := dingTalkSign(1700000000000, "secret")
	if a != b {
		t.Error("same inputs must produce the same signature")
	}
	if a == dingTalkSign(1700000000001, "secret") {
		t.Error("timestamp must affect the signature")
	}
	if a == dingTalkSign(1700000000000, "other") {
		t.Error("secret must affect the signature")
	}
}

func TestFeishuSign_Deterministic(t *testing.T) {
	a := feishuSign(1700000000, "secret")
	if a != feishuSign(1700000000, "secret") {
		t.Error("same inputs must produce the same signature")
	}
	if a == feishuSign(1700000001, "secret") {
		t.Error("timestamp must affect the signature")
	}
}

func TestKindTitles_CoverAllKinds(t *testing.T) {
	kinds := []string{
		NotifyPaymentCaptured, NotifyProjectAccepted, NotifyStatusAdvanced,
		NotifyCancellationRequested, NotifyCancellationApproved, NotifyCancellationDenied,
		NotifyProducerChanged, NotifyDeadlineExpired, NotifyProducerPaid,
		NotifyRevisionRequested, NotifyRevisionDelivered, NotifyFeedbackSubmitted,
		NotifyDailyReport,
	}
	for _, kind := range kinds {
		if kindTitles[kind] == "" {
			t.Errorf("kind %q has no title", kind)
		}
	}
}
