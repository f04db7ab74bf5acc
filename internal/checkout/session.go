package checkout

import (
	"fmt"
	"time"
)

// Phase is the checkout state machine's position. Every change goes
// through Session.advance, so an illegal transition is an error at the
// single place transitions happen rather than a silent corruption.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOrderCreating
	PhaseAwaitingPayment
	PhaseVerifying
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseOrderCreating:
		return "ORDER_CREATING"
	case PhaseAwaitingPayment:
		return "AWAITING_PAYMENT"
	case PhaseVerifying:
		return "VERIFYING"
	case PhaseTerminal:
		return "TERMINAL"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Active reports whether the phase blocks a new checkout attempt.
// This is the system's one hard mutual-exclusion boundary.
func (p Phase) Active() bool {
	return p == PhaseOrderCreating || p == PhaseAwaitingPayment || p == PhaseVerifying
}

// Outcome is how a terminal session ended.
type Outcome int

const (
	// OutcomeNone: the session has not reached a terminal phase.
	OutcomeNone Outcome = iota
	// OutcomeConfirmed: server verified the charge; redirect scheduled.
	OutcomeConfirmed
	// OutcomeCancelled: user dismissed the gateway, order cancelled
	// server-side. Retryable; a retry creates a fresh order.
	OutcomeCancelled
	// OutcomeFailed: order creation rejected, or verification rejected
	// by the server.
	OutcomeFailed
	// OutcomeUnknown: the verification call itself failed, so the true
	// payment outcome is unknown. The user is told to check order
	// status; the background poll reconciles the ledger.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "none"
	}
}

var validTransitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseOrderCreating},
	PhaseOrderCreating:   {PhaseAwaitingPayment, PhaseTerminal},
	PhaseAwaitingPayment: {PhaseVerifying},
	PhaseVerifying:       {PhaseTerminal},
}

// Session is one checkout attempt: one press of "place order" through
// to a terminal outcome. At most one session per user may be in an
// active phase at a time.
type Session struct {
	UserID         int64
	AddressID      int64
	AttemptID      int64
	OrderID        int64
	OrderNumber    string
	GatewayOrderID string
	Amount         int64

	phase         Phase
	outcome       Outcome
	failureReason string
	redirectAt    time.Time
}

func newSession(userID, addressID int64) *Session {
	return &Session{
		UserID:    userID,
		AddressID: addressID,
		phase:     PhaseIdle,
	}
}

// advance moves the session to the next phase, or errors if the
// transition is not in the machine.
func (s *Session) advance(to Phase) error {
	for _, allowed := range validTransitions[s.phase] {
		if allowed == to {
			s.phase = to
			return nil
		}
	}
	return fmt.Errorf("illegal checkout transition %s -> %s", s.phase, to)
}

// terminate moves the session to TERMINAL with the given outcome.
func (s *Session) terminate(outcome Outcome, reason string) error {
	if err := s.advance(PhaseTerminal); err != nil {
		return err
	}
	s.outcome = outcome
	s.failureReason = reason
	return nil
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Status is a read-only view of a session for the UI.
type Status struct {
	Phase          string    `json:"phase"`
	Outcome        string    `json:"outcome"`
	OrderID        int64     `json:"order_id,omitempty"`
	OrderNumber    string    `json:"order_number,omitempty"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	RedirectAt     time.Time `json:"redirect_at"`
	Retryable      bool      `json:"retryable"`
}

// Confirmed reports whether the session ended with a verified charge.
func (st Status) Confirmed() bool {
	return st.Outcome == OutcomeConfirmed.String()
}

func (s *Session) status() Status {
	return Status{
		Phase:          s.phase.String(),
		Outcome:        s.outcome.String(),
		OrderID:        s.OrderID,
		OrderNumber:    s.OrderNumber,
		GatewayOrderID: s.GatewayOrderID,
		Amount:         s.Amount,
		FailureReason:  s.failureReason,
		RedirectAt:     s.redirectAt,
		Retryable:      s.phase == PhaseTerminal && s.outcome != OutcomeConfirmed && s.outcome != OutcomeUnknown,
	}
}
