// Package gateway wraps the external payment processor. All mutating calls
// carry an idempotency key so retried settlement operations never move money
// twice.
package gateway

import "context"

// PaymentGateway is the contract the lifecycle service settles money through.
type PaymentGateway interface {
	// Capture charges the customer and returns the payment reference that
	// later refunds are issued against.
	Capture(ctx context.Context, amountCents int64, customerRef string) (string, error)
	// Refund returns amountCents of a captured payment to the customer.
	Refund(ctx context.Context, paymentRef string, amountCents int64, idempotencyKey string) (string, error)
	// Transfer pays amountCents out to a producer's payout account.
	Transfer(ctx context.Context, destinationAccount string, amountCents int64, idempotencyKey string) (string, error)
}
