package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrStalePrice indicates the feed's latest round failed one of the
	// freshness checks and must not be used for valuation.
	ErrStalePrice = errors.New("oracle: stale price")
	// ErrInvalidAnswer indicates the feed reported a missing or non-positive
	// price, or a decimal scale above the fixed-point maximum of 18.
	ErrInvalidAnswer = errors.New("oracle: invalid answer")
)

// DefaultTimeout bounds how old a round may be before it is considered stale.
const DefaultTimeout = 3 * time.Hour

// RoundData mirrors the latest-round report of an external price feed. Answer
// is the signed price expressed in the feed's own decimal scale.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

// PriceFeed resolves the latest round reported by an upstream price source.
type PriceFeed interface {
	LatestRoundData() (RoundData, error)
	Decimals() uint8
}

// Guard wraps a price feed and rejects rounds that fail freshness checks. A
// feed can silently stop updating while still answering its last-known value;
// each check defends against a different upstream failure mode (dead feed,
// carried-over round, stale timestamp).
type Guard struct {
	feed    PriceFeed
	timeout time.Duration
	nowFn   func() time.Time
}

// NewGuard wraps the feed with the supplied timeout. A non-positive timeout
// falls back to DefaultTimeout.
func NewGuard(feed PriceFeed, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{
		feed:    feed,
		timeout: timeout,
		nowFn:   time.Now,
	}
}

// SetNowFunc overrides the time source used for staleness checks. Primarily
// intended for tests to provide deterministic clocks.
func (g *Guard) SetNowFunc(now func() time.Time) {
	if now == nil {
		g.nowFn = time.Now
		return
	}
	g.nowFn = now
}

// Feed returns the wrapped price feed.
func (g *Guard) Feed() PriceFeed {
	if g == nil {
		return nil
	}
	return g.feed
}

// FreshPrice returns the latest price and its decimal scale, failing with
// ErrStalePrice when the round has never been updated, answers a carried-over
// round, or exceeds the configured timeout. Staleness is fatal to the calling
// operation, not transient: retrying within one call cannot make the external
// data fresher.
func (g *Guard) FreshPrice() (*big.Int, uint8, error) {
	if g == nil || g.feed == nil {
		return nil, 0, fmt.Errorf("oracle: feed not configured")
	}
	round, err := g.feed.LatestRoundData()
	if err != nil {
		return nil, 0, err
	}
	if round.UpdatedAt.IsZero() {
		return nil, 0, fmt.Errorf("%w: round never updated", ErrStalePrice)
	}
	if round.RoundID != nil && round.AnsweredInRound != nil && round.AnsweredInRound.Cmp(round.RoundID) < 0 {
		return nil, 0, fmt.Errorf("%w: answered in round %s behind round %s", ErrStalePrice, round.AnsweredInRound, round.RoundID)
	}
	if g.nowFn().Sub(round.UpdatedAt) > g.timeout {
		return nil, 0, fmt.Errorf("%w: round older than %s", ErrStalePrice, g.timeout)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, 0, ErrInvalidAnswer
	}
	decimals := g.feed.Decimals()
	if decimals > 18 {
		return nil, 0, fmt.Errorf("%w: feed decimals %d exceed 18", ErrInvalidAnswer, decimals)
	}
	return new(big.Int).Set(round.Answer), decimals, nil
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response. Every Set advances the round and
// answers within it, so a manually pinned price is always round-consistent.
type ManualFeed struct {
	mu       sync.RWMutex
	decimals uint8
	round    RoundData
}

// NewManualFeed constructs an empty manual feed reporting prices at the given
// decimal scale.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Set records the supplied price with the given observation timestamp.
func (m *ManualFeed) Set(price *big.Int, updatedAt time.Time) {
	if m == nil || price == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := big.NewInt(1)
	if m.round.RoundID != nil {
		next = new(big.Int).Add(m.round.RoundID, big.NewInt(1))
	}
	m.round = RoundData{
		RoundID:         next,
		Answer:          new(big.Int).Set(price),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: new(big.Int).Set(next),
	}
}

// SetRound overwrites the full round report. Intended for tests exercising
// round-consistency failures.
func (m *ManualFeed) SetRound(round RoundData) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.round = round
	m.mu.Unlock()
}

// LatestRoundData returns a copy of the stored round.
func (m *ManualFeed) LatestRoundData() (RoundData, error) {
	if m == nil {
		return RoundData{}, fmt.Errorf("oracle: manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	round := m.round
	if round.RoundID != nil {
		round.RoundID = new(big.Int).Set(round.RoundID)
	}
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	if round.AnsweredInRound != nil {
		round.AnsweredInRound = new(big.Int).Set(round.AnsweredInRound)
	}
	return round, nil
}

// Decimals reports the feed's decimal scale.
func (m *ManualFeed) Decimals() uint8 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decimals
}
