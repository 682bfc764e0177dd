package repweight

import (
	"math/big"
	"sort"
	"time"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/store"
)

// maxOnlineWeightSamples bounds how many trend samples are kept; older
// samples are dropped once the window is full (spec §6.4
// online_weight_minimum: "derived from trended online weight").
const maxOnlineWeightSamples = 64

// OnlineWeightTracker periodically samples a weight Cache's live total and
// persists it, deriving a trended quorum delta that smooths over any
// single moment's low rep turnout (spec §4.7/§9 "Quorum / delta").
type OnlineWeightTracker struct {
	store   *store.Store
	weights *Cache
	minimum core.Amount
	clock   func() time.Time
}

// NewOnlineWeightTracker builds a tracker over weights, persisting samples
// to s and flooring the trend at minimum.
func NewOnlineWeightTracker(s *store.Store, weights *Cache, minimum core.Amount) *OnlineWeightTracker {
	return &OnlineWeightTracker{store: s, weights: weights, minimum: minimum, clock: time.Now}
}

// Sample records the cache's current total weight as a new sample,
// trimming the oldest sample once the window is full.
func (t *OnlineWeightTracker) Sample() error {
	now := t.clock().Unix()
	if err := t.store.PutOnlineWeightSample(now, t.weights.Total()); err != nil {
		return err
	}
	samples, err := t.store.OnlineWeightSamplesWithTimestamps()
	if err != nil {
		return err
	}
	for len(samples) > maxOnlineWeightSamples {
		oldest := samples[0]
		if err := t.store.DeleteOnlineWeightSample(oldest.Timestamp); err != nil {
			return err
		}
		samples = samples[1:]
	}
	return nil
}

// Trend returns the median of all recorded samples, floored by minimum.
// Medians resist a single short-lived weight spike or drop the way a mean
// would not (spec §9: "derived from trended online weight").
func (t *OnlineWeightTracker) Trend() (core.Amount, error) {
	samples, err := t.store.OnlineWeightSamples()
	if err != nil {
		return t.minimum, err
	}
	if len(samples) == 0 {
		return t.minimum, nil
	}
	sorted := append([]core.Amount(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	median := sorted[len(sorted)/2]
	if median.LessThan(t.minimum) {
		return t.minimum, nil
	}
	return median, nil
}

// QuorumDelta returns a func() core.Amount suitable for active.Config and
// election.New: quorumPercent of the trended online weight (spec §9:
// "the weight threshold above which a winner is considered confirmed").
func (t *OnlineWeightTracker) QuorumDelta(quorumPercent int) func() core.Amount {
	return func() core.Amount {
		trend, err := t.Trend()
		if err != nil {
			return t.minimum
		}
		product := trend.Big()
		product.Mul(product, big.NewInt(int64(quorumPercent)))
		product.Div(product, big.NewInt(100))
		return core.AmountFromBig(product)
	}
}
