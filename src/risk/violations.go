package risk

// Code identifies a business-rule violation. Violations never surface as
// uncaught errors; the executor converts them into failed trade records.
type Code string

const (
	ShortDisabled           Code = "short_disabled"
	LeverageExceeded        Code = "leverage_exceeded"
	NotionalOutOfRange      Code = "notional_out_of_range"
	MaxOpenPositionsReached Code = "max_open_positions_reached"
	CooldownActive          Code = "cooldown_active"
	PositionRatioExceeded   Code = "position_ratio_exceeded"
	InsufficientCash        Code = "insufficient_cash"

	// NoPositionToClose is raised by the executor, not the gate, when a
	// close-only intent finds no matching open position.
	NoPositionToClose Code = "no_position_to_close"
)

// Violation carries the rejection code and a human-readable feedback string
// that ends up on the failed trade record.
type Violation struct {
	Code    Code
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}
