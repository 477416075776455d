package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition возвращается при недопустимой смене статуса
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrUnknownStatus возвращается, если значение статуса не входит в перечисление
var ErrUnknownStatus = errors.New("unknown status")

// transitionTable описывает разрешенные переходы: from -> набор to
type transitionTable map[string]map[string]bool

func (t transitionTable) allows(from, to string) bool {
	if from == to {
		return true
	}
	next, ok := t[from]
	if !ok {
		return false
	}
	return next[to]
}

func newTable(edges map[string][]string) transitionTable {
	table := make(transitionTable, len(edges))
	for from, targets := range edges {
		table[from] = make(map[string]bool, len(targets))
		for _, to := range targets {
			table[from][to] = true
		}
	}
	return table
}

func checkTransition(entity string, table transitionTable, valid func(string) bool, from, to string) error {
	if !valid(to) {
		return fmt.Errorf("%w: %s status %q", ErrUnknownStatus, entity, to)
	}
	if !table.allows(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, entity, from, to)
	}
	return nil
}

// Статусы коммерческого предложения

type QuoteStatus string

const (
	QuoteDraft           QuoteStatus = "draft"
	QuoteSent            QuoteStatus = "sent"
	QuoteAccepted        QuoteStatus = "accepted"
	QuoteRejected        QuoteStatus = "rejected"
	QuoteExpired         QuoteStatus = "expired"
	QuoteMissionAssigned QuoteStatus = "mission_assigned"
)

var quoteTransitions = newTable(map[string][]string{
	"draft":    {"sent", "expired"},
	"sent":     {"accepted", "rejected", "expired", "draft"},
	"expired":  {"draft"},
	"rejected": {"draft"},
	"accepted": {"mission_assigned"},
})

// Valid проверяет, что статус входит в перечисление
func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteDraft, QuoteSent, QuoteAccepted, QuoteRejected, QuoteExpired, QuoteMissionAssigned:
		return true
	}
	return false
}

// CanTransitionTo проверяет переход статуса предложения
func (s QuoteStatus) CanTransitionTo(to QuoteStatus) error {
	return checkTransition("quote", quoteTransitions, func(v string) bool { return QuoteStatus(v).Valid() }, string(s), string(to))
}

// Статусы выезда (миссии)

type MissionStatus string

const (
	MissionPending    MissionStatus = "pending"
	MissionAccepted   MissionStatus = "accepted"
	MissionInProgress MissionStatus = "in-progress"
	MissionCompleted  MissionStatus = "completed"
	MissionCancelled  MissionStatus = "cancelled"
)

var missionTransitions = newTable(map[string][]string{
	"pending":     {"accepted", "in-progress", "completed", "cancelled"},
	"accepted":    {"in-progress", "completed", "cancelled"},
	"in-progress": {"completed", "cancelled"},
})

func (s MissionStatus) Valid() bool {
	switch s {
	case MissionPending, MissionAccepted, MissionInProgress, MissionCompleted, MissionCancelled:
		return true
	}
	return false
}

// CanTransitionTo проверяет переход статуса миссии
func (s MissionStatus) CanTransitionTo(to MissionStatus) error {
	return checkTransition("mission", missionTransitions, func(v string) bool { return MissionStatus(v).Valid() }, string(s), string(to))
}

// Статусы заявки клиента

type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestAssigned   RequestStatus = "assigned"
	RequestInProgress RequestStatus = "in-progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
	RequestQuoted     RequestStatus = "quoted"
)

var requestTransitions = newTable(map[string][]string{
	"pending":     {"assigned", "quoted", "cancelled"},
	"assigned":    {"in-progress", "quoted", "cancelled"},
	"quoted":      {"assigned", "in-progress", "cancelled"},
	"in-progress": {"completed", "cancelled"},
})

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAssigned, RequestInProgress, RequestCompleted, RequestCancelled, RequestQuoted:
		return true
	}
	return false
}

func (s RequestStatus) CanTransitionTo(to RequestStatus) error {
	return checkTransition("request", requestTransitions, func(v string) bool { return RequestStatus(v).Valid() }, string(s), string(to))
}

// Статусы отчета о вмешательстве

type ReportStatus string

const (
	ReportDraft     ReportStatus = "draft"
	ReportPending   ReportStatus = "pending"
	ReportCompleted ReportStatus = "completed"
	ReportSent      ReportStatus = "sent"
)

var reportTransitions = newTable(map[string][]string{
	"draft":     {"pending", "completed"},
	"pending":   {"draft", "completed"},
	"completed": {"sent"},
})

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportDraft, ReportPending, ReportCompleted, ReportSent:
		return true
	}
	return false
}

func (s ReportStatus) CanTransitionTo(to ReportStatus) error {
	return checkTransition("report", reportTransitions, func(v string) bool { return ReportStatus(v).Valid() }, string(s), string(to))
}

// Статусы счета

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceOverdue   InvoiceStatus = "overdue"
)

var invoiceTransitions = newTable(map[string][]string{
	"pending": {"paid", "cancelled", "overdue"},
	"overdue": {"paid", "cancelled"},
	"paid":    {"pending"}, // возврат платежа снова открывает счет
})

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePaid, InvoiceCancelled, InvoiceOverdue:
		return true
	}
	return false
}

func (s InvoiceStatus) CanTransitionTo(to InvoiceStatus) error {
	return checkTransition("invoice", invoiceTransitions, func(v string) bool { return InvoiceStatus(v).Valid() }, string(s), string(to))
}

// Статус оплаты счета (вычисляется из оплаченной суммы)

type PaymentState string

const (
	PaymentStateUnpaid        PaymentState = "unpaid"
	PaymentStatePartiallyPaid PaymentState = "partially_paid"
	PaymentStatePaid          PaymentState = "paid"
)

// Статусы платежа

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentTransitions = newTable(map[string][]string{
	"pending":   {"completed", "failed"},
	"completed": {"refunded"},
})

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(to PaymentStatus) error {
	return checkTransition("payment", paymentTransitions, func(v string) bool { return PaymentStatus(v).Valid() }, string(s), string(to))
}
