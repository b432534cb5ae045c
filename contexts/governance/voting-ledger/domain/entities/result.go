package entities

// ResultSource states which source of truth produced a tally.
type ResultSource string

const (
	SourceLocalProvisional ResultSource = "local_provisional"
	SourceLedgerConfirmed  ResultSource = "ledger_confirmed"
	SourceMerged           ResultSource = "merged"
)

type OptionCount struct {
	Option string
	Count  uint64
}

// PollResult is the aggregated tally for one poll. Counts preserve the poll's
// option order. Stale is set when a ledger read failed transiently and the
// tally fell back to local confirmed votes.
type PollResult struct {
	PollID string
	Source ResultSource
	Stale  bool
	Counts []OptionCount
}

func (r PollResult) Count(option string) uint64 {
	for _, c := range r.Counts {
		if c.Option == option {
			return c.Count
		}
	}
	return 0
}
