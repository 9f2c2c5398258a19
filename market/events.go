package market

import "strconv"

// Event is the canonical attribute-map payload emitted on state mutations.
type Event struct {
	Type       string
	Attributes map[string]string
}

// EventSink receives engine events. A nil sink disables emission.
type EventSink interface {
	Emit(*Event)
}

const (
	EventTypeDeposit            = "lending.deposit"
	EventTypeWithdraw           = "lending.withdraw"
	EventTypeBorrow             = "lending.borrow"
	EventTypeRepay              = "lending.repay"
	EventTypeCollateralWithdraw = "lending.collateralWithdraw"
	EventTypeLiquidation        = "lending.liquidation"
	EventTypeBuyout             = "lending.buyout"
	EventTypeLoanClosed         = "lending.loanClosed"
	EventTypeFeesWithdrawn      = "lending.feesWithdrawn"
	EventTypeParamsUpdated      = "lending.paramsUpdated"
)

func newEvent(eventType string) *Event {
	return &Event{Type: eventType, Attributes: make(map[string]string)}
}

func (ev *Event) attr(key, value string) *Event {
	ev.Attributes[key] = value
	return ev
}

func (ev *Event) amount(key string, value uint64) *Event {
	ev.Attributes[key] = strconv.FormatUint(value, 10)
	return ev
}

func (e *Engine) emit(ev *Event) {
	if e.events == nil || ev == nil {
		return
	}
	e.events.Emit(ev)
}
