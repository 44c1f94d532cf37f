package decision

// NewsGate is a secondary, sentiment-driven veto that runs after the
// economic-calendar gate. Implementations must be cheap; the pipeline calls
// them once per bar.
type NewsGate interface {
	CanTrade() bool
}

// AllowAllNews is the default gate: no live news feed is connected, so
// trading is never vetoed on sentiment.
type AllowAllNews struct{}

func (AllowAllNews) CanTrade() bool { return true }
