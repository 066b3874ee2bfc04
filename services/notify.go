package services

import (
	"log"
	"os"
	"strings"
	"time"
)

const (
	EventInvestmentCompleted   = "investment.completed"
	EventInvestmentFailed      = "investment.failed"
	EventBranchCapacityReached = "branch.capacity_reached"
	EventBankTransferRequested = "investment.bank_transfer_requested"
)

// Event is emitted after a committed ledger transition. Delivery is
// fire-and-forget: a dispatcher failure is logged and swallowed, it can never
// roll back the transition that produced it.
type Event struct {
	Type         string `json:"type"`
	InvestmentID uint   `json:"investment_id,omitempty"`
	Reference    string `json:"reference,omitempty"`
	BranchID     uint   `json:"branch_id,omitempty"`
	UserID       uint   `json:"user_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type Notifier interface {
	Dispatch(ev Event)
}

// DefaultNotifier is the process-wide dispatcher used by the HTTP layer.
// main may replace it with one carrying a real delivery sink.
var DefaultNotifier Notifier = NewLogNotifier()

// NopNotifier drops events. Used in tests and when no dispatcher is configured.
type NopNotifier struct{}

func (NopNotifier) Dispatch(Event) {}

// LogNotifier forwards events to the external notification dispatcher
// asynchronously. The current transport is the dispatcher's queue endpoint
// hit by a worker goroutine per event; delivery errors only ever hit the log.
type LogNotifier struct {
	sink func(Event) error
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// WithSink overrides the delivery function, mainly for wiring the HTTP
// dispatcher client in main without importing it here.
func (n *LogNotifier) WithSink(sink func(Event) error) *LogNotifier {
	n.sink = sink
	return n
}

func (n *LogNotifier) Dispatch(ev Event) {
	go func() {
		start := time.Now()
		if n.sink != nil {
			if err := n.sink(ev); err != nil {
				log.Printf("[NOTIFY] dispatch %s failed after %s: %v", ev.Type, time.Since(start).Round(time.Millisecond), err)
				return
			}
		}
		if notifyDebug() {
			log.Printf("[NOTIFY] dispatched %s investment=%d branch=%d", ev.Type, ev.InvestmentID, ev.BranchID)
		}
	}()
}

func notifyDebug() bool {
	return strings.ToLower(os.Getenv("NOTIFY_DEBUG")) == "true"
}
