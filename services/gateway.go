package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// IntentStatus is the authoritative card payment state as reported by the
// gateway, re-fetched before any transition is trusted.
type IntentStatus string

const (
	IntentRequiresAction IntentStatus = "requires_action"
	IntentProcessing     IntentStatus = "processing"
	IntentSucceeded      IntentStatus = "succeeded"
	IntentFailed         IntentStatus = "failed"
)

// CardGateway is the boundary to the external card-payment processor.
// Implementations mark retryable failures (network, 5xx) with a
// Transient() bool method on the error; a definitive processor answer (an
// unknown intent, a malformed request) is a plain error. A declined payment
// is not an error at all: nil error with IntentFailed.
type CardGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (intentID, clientSecret string, err error)
	GetIntentStatus(ctx context.Context, intentID string) (status IntentStatus, raw string, err error)
}

// isTransientGatewayErr reports whether the gateway failure is worth retrying.
// Only transient failures become ErrGatewayUnavailable; wrapping a definitive
// answer would make the webhook processor redeliver the same event forever.
func isTransientGatewayErr(err error) bool {
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}
