// Package assignment chooses advisors for leads and maintains the
// advisor-lead assignment ledger.
package assignment

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	advisorrepo "leadflow_backend/internal/advisors/repository"
	"leadflow_backend/platform/logger"
)

// Strategy selects how the next advisor is chosen.
type Strategy string

const (
	// StrategyRoundRobin picks the available advisor with the fewest
	// assignments created today.
	StrategyRoundRobin Strategy = "ROUND_ROBIN"
	// StrategyQuotaDeficit picks the advisor furthest below their earned
	// share of today's assignments, where the share is proportional to the
	// monthly score.
	StrategyQuotaDeficit Strategy = "QUOTA_DEFICIT"
)

// Round-robin is forced for the first week of the month so that new-month
// merit data can accumulate before quota-deficit takes over.
const quotaDeficitStartDay = 8

// DefaultStrategy returns the strategy in force at the given instant.
func DefaultStrategy(now time.Time) Strategy {
	if now.Day() < quotaDeficitStartDay {
		return StrategyRoundRobin
	}
	return StrategyQuotaDeficit
}

// AdvisorDirectory lists advisors currently able to take leads.
type AdvisorDirectory interface {
	ListAvailable(ctx context.Context) ([]advisorrepo.Advisor, error)
}

// AssignmentCounter reports today's assignment distribution.
type AssignmentCounter interface {
	CountsCreatedToday(ctx context.Context) (map[uuid.UUID]int, int, error)
}

// MonthlyScorer reports an advisor's score for the current calendar month.
type MonthlyScorer interface {
	MonthlyScore(ctx context.Context, advisorID uuid.UUID, referenceDate time.Time) (int, error)
}

// Selector implements both advisor-selection strategies.
type Selector struct {
	advisors AdvisorDirectory
	counts   AssignmentCounter
	scores   MonthlyScorer
	log      *logger.Logger
}

func NewSelector(advisors AdvisorDirectory, counts AssignmentCounter, scores MonthlyScorer, log *logger.Logger) *Selector {
	return &Selector{
		advisors: advisors,
		counts:   counts,
		scores:   scores,
		log:      log,
	}
}

// Pick returns the best advisor for a new lead under the given strategy,
// or nil when no advisor is available. A nil result is an expected business
// condition, not an error; the caller queues the lead for later distribution.
func (s *Selector) Pick(ctx context.Context, strategy Strategy, exclude ...uuid.UUID) (*advisorrepo.Advisor, error) {
	available, err := s.advisors.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]advisorrepo.Advisor, 0, len(available))
	for _, a := range available {
		if !contains(exclude, a.ID) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	switch strategy {
	case StrategyQuotaDeficit:
		return s.pickByQuotaDeficit(ctx, candidates)
	default:
		return s.pickRoundRobin(ctx, candidates)
	}
}

// pickRoundRobin selects the candidate with the fewest assignments created
// today. Candidates are shuffled first so ties don't always fall on the same
// advisor.
func (s *Selector) pickRoundRobin(ctx context.Context, candidates []advisorrepo.Advisor) (*advisorrepo.Advisor, error) {
	counts, _, err := s.counts.CountsCreatedToday(ctx)
	if err != nil {
		return nil, err
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	best := candidates[0]
	for _, c := range candidates[1:] {
		if counts[c.ID] < counts[best.ID] {
			best = c
		}
	}

	return &best, nil
}

// pickByQuotaDeficit implements proportional-fairness scheduling: each
// candidate's target share of today's assignments is their monthly score
// relative to the group, and the candidate furthest below target wins.
// Equal deficits break toward the lowest advisor id so results are stable
// across query orderings.
func (s *Selector) pickByQuotaDeficit(ctx context.Context, candidates []advisorrepo.Advisor) (*advisorrepo.Advisor, error) {
	counts, totalToday, err := s.counts.CountsCreatedToday(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	effective := make(map[uuid.UUID]float64, len(candidates))
	totalEffective := 0.0
	for _, c := range candidates {
		score, err := s.scores.MonthlyScore(ctx, c.ID, now)
		if err != nil {
			return nil, err
		}
		// Floor of 1 keeps zero-score advisors in rotation and avoids
		// division by zero.
		eff := float64(max(score, 1))
		effective[c.ID] = eff
		totalEffective += eff
	}

	// The +1 accounts for the lead being assigned right now.
	demand := float64(totalToday + 1)

	var best *advisorrepo.Advisor
	bestDeficit := 0.0
	for i := range candidates {
		c := &candidates[i]
		targetShare := effective[c.ID] / totalEffective
		expected := targetShare * demand
		deficit := expected - float64(counts[c.ID])

		if best == nil || deficit > bestDeficit ||
			(deficit == bestDeficit && strings.Compare(c.ID.String(), best.ID.String()) < 0) {
			best = c
			bestDeficit = deficit
		}
	}

	return best, nil
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
