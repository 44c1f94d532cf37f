package audit

import "fmt"

// VerifyStatus summarizes a chain verification walk.
type VerifyStatus string

const (
	// VerifyPass means the chain is fully closed back to genesis.
	VerifyPass VerifyStatus = "PASS"
	// VerifyPartial means the chain is internally consistent but does not
	// start at genesis, as when verifying a sub-window of a larger file.
	VerifyPartial VerifyStatus = "PARTIAL"
	// VerifyFail means a digest mismatch or link break was found. This is
	// tamper evidence and is never auto-repaired.
	VerifyFail VerifyStatus = "FAIL"
)

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	Status  VerifyStatus `json:"status"`
	Checked int          `json:"checked"`
	Detail  string       `json:"detail,omitempty"`
}

// Verify walks an event sequence checking that every stored hash matches the
// recomputed digest and every prev_hash links to the previous event's hash.
func Verify(events []Event) VerifyResult {
	if len(events) == 0 {
		return VerifyResult{Status: VerifyPass, Detail: "empty chain"}
	}

	for i, ev := range events {
		computed, err := digest(&ev)
		if err != nil {
			return VerifyResult{
				Status:  VerifyFail,
				Checked: i,
				Detail:  fmt.Sprintf("event %d (%s): %v", i, ev.EventID, err),
			}
		}
		if computed != ev.Hash {
			return VerifyResult{
				Status:  VerifyFail,
				Checked: i,
				Detail:  fmt.Sprintf("event %d (%s): digest mismatch", i, ev.EventID),
			}
		}
		if i > 0 && ev.PrevHash != events[i-1].Hash {
			return VerifyResult{
				Status:  VerifyFail,
				Checked: i,
				Detail:  fmt.Sprintf("event %d (%s): broken link", i, ev.EventID),
			}
		}
	}

	if events[0].PrevHash != GenesisHash {
		return VerifyResult{Status: VerifyPartial, Checked: len(events)}
	}
	return VerifyResult{Status: VerifyPass, Checked: len(events)}
}

// VerifyFile loads and verifies a ledger file.
func VerifyFile(path string) (VerifyResult, error) {
	events, err := ReadAll(path)
	if err != nil {
		return VerifyResult{Status: VerifyFail, Checked: len(events), Detail: err.Error()}, err
	}
	return Verify(events), nil
}
