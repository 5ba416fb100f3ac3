package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSyncQueue_DeliversThroughProcessor(t *testing.T) {
	queue := NewSyncQueue()

	var mu sync.Mutex
	var delivered []*NotificationTask
	done := make(chan struct{}, 1)
	queue.SetProcessor(func(_ context.Context, task *NotificationTask) error {
		mu.Lock()
		delivered = append(delivered, task)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	task := &NotificationTask{
		Kind:      NotifyPaymentCaptured,
		Recipient: recipientCustomer(10),
		Payload:   map[string]interface{}{"project_id": uint(1)},
	}
	if err := queue.Enqueue(task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Fatalf("delivered = %d tasks", len(delivered))
	}
	if delivered[0].Kind != NotifyPaymentCaptured || delivered[0].Recipient.UserID != 10 {
		t.Errorf("task = %+v", delivered[0])
	}
}

func TestSyncQueue_NoProcessorDropsTask(t *testing.T) {
	queue := NewSyncQueue()
	if err := queue.Enqueue(&NotificationTask{Kind: NotifyProducerPaid}); err != nil {
		t.Fatalf("Enqueue without processor must not error, got %v", err)
	}
}

func TestSyncQueue_IsAsync(t *testing.T) {
	queue := NewSyncQueue()
	if queue.IsAsync() {
		t.Error("sync queue must report IsAsync() == false")
	}
	if err := queue.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
