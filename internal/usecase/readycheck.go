package usecase

import (
	"context"
	"fmt"
	"time"
)

// ReadyCheckOutcome is the resolution of a confirmation round.
type ReadyCheckOutcome string

const (
	ReadyCheckValidated ReadyCheckOutcome = "validated"
	ReadyCheckRejected  ReadyCheckOutcome = "rejected"
	ReadyCheckTimedOut  ReadyCheckOutcome = "timed_out"
)

// ReadyCheckResult carries the outcome and the players it implicates:
// the rejecter on rejection, the non-accepters on timeout, empty on
// validation.
type ReadyCheckResult struct {
	Outcome     ReadyCheckOutcome
	AffectedIDs []int64
}

// RunReadyCheck drives one confirmation round to resolution. It consumes
// answers from signals until threshold candidates accept, one candidate
// rejects, the timeout fires, or ctx is cancelled (admin void). Signals from
// non-candidates are dropped, repeat accepts are deduplicated, and onAccept
// (optional) is invoked with the accepted set after each new accept.
func RunReadyCheck(
	ctx context.Context,
	candidateIDs []int64,
	threshold int,
	timeout time.Duration,
	signals <-chan ReadySignal,
	onAccept func(acceptedIDs []int64),
) (ReadyCheckResult, error) {
	if len(candidateIDs) == 0 {
		return ReadyCheckResult{}, fmt.Errorf("%w: no candidates", ErrInvalidInput)
	}
	if threshold < 1 || threshold > len(candidateIDs) {
		return ReadyCheckResult{}, fmt.Errorf("%w: threshold %d out of range for %d candidates", ErrInvalidInput, threshold, len(candidateIDs))
	}

	candidates := make(map[int64]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		candidates[id] = true
	}
	accepted := make(map[int64]bool, threshold)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReadyCheckResult{}, ctx.Err()
		case <-timer.C:
			var missing []int64
			for _, id := range candidateIDs {
				if !accepted[id] {
					missing = append(missing, id)
				}
			}
			return ReadyCheckResult{Outcome: ReadyCheckTimedOut, AffectedIDs: missing}, nil
		case sig, ok := <-signals:
			if !ok {
				// Transport stopped feeding answers, wait out the timer.
				signals = nil
				continue
			}
			if !candidates[sig.PlayerID] {
				continue
			}
			if !sig.Accept {
				return ReadyCheckResult{Outcome: ReadyCheckRejected, AffectedIDs: []int64{sig.PlayerID}}, nil
			}
			if accepted[sig.PlayerID] {
				continue
			}
			accepted[sig.PlayerID] = true
			if onAccept != nil {
				ids := make([]int64, 0, len(accepted))
				for _, id := range candidateIDs {
					if accepted[id] {
						ids = append(ids, id)
					}
				}
				onAccept(ids)
			}
			if len(accepted) >= threshold {
				return ReadyCheckResult{Outcome: ReadyCheckValidated}, nil
			}
		}
	}
}
