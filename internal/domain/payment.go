package domain

// PaymentChannel identifies how a payment confirmation reached the system.
type PaymentChannel string

const (
	PaymentChannelPush      PaymentChannel = "push"
	PaymentChannelCallback  PaymentChannel = "callback"
	PaymentChannelReconcile PaymentChannel = "reconcile"
)

const (
	OrderStatusPaid        = "PAID"
	PaymentStatusSucceeded = "SUCCEEDED"
)

// PaymentSignal is an unverified claim that a reservation has been paid.
type PaymentSignal struct {
	ReservationID string         `json:"reservation_id"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Channel       PaymentChannel `json:"channel"`
}

// PaymentSession is the processor-side checkout created for a hold.
type PaymentSession struct {
	SessionID  string `json:"session_id"`
	PaymentURL string `json:"payment_url"`
}

// PaymentRecord is the processor's authoritative view of a checkout.
type PaymentRecord struct {
	SessionID     string `json:"session_id"`
	OrderID       string `json:"order_id"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// Paid reports whether both the order and its payment are settled.
func (p *PaymentRecord) Paid() bool {
	return p.OrderStatus == OrderStatusPaid && p.PaymentStatus == PaymentStatusSucceeded
}

// ConfirmationOutcome is what either confirmation channel reports back.
type ConfirmationOutcome struct {
	Reservation *Reservation `json:"reservation"`
	Contract    *Contract    `json:"contract,omitempty"`
	// Duplicate is set when the reservation had already been confirmed.
	Duplicate bool `json:"duplicate"`
}
