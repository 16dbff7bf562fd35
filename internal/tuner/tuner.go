// Package tuner implements a Thompson-sampling multi-armed bandit over a
// fixed set of Scorer weight triples, closing the loop the Rolling
// Evaluator opens: which mix of recency/frequency/tag weighting actually
// produces hits.
//
// No library in the retrieved example pack implements a bandit or a Beta
// distribution sampler — this is the one subsystem where stdlib `math`
// and `math/rand` are the correct choice outright, not a fallback from a
// missing dependency.
package tuner

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/predictsh/predictd/internal/scorer"
)

// Arm is one fixed, named weight triple and its observed hit/miss counts.
type Arm struct {
	Name    string         `json:"name"`
	Weights scorer.Weights `json:"weights"`
	Hits    int            `json:"hits"`
	Misses  int            `json:"misses"`
}

// defaultArms is the fixed closed set of 8 weight triples, each summing
// to 1.0, named after the dimension (if any) they favor.
func defaultArms() []Arm {
	return []Arm{
		{Name: "recency-heavy", Weights: scorer.Weights{Recency: 0.7, Frequency: 0.15, Tag: 0.15}},
		{Name: "frequency-heavy", Weights: scorer.Weights{Recency: 0.15, Frequency: 0.7, Tag: 0.15}},
		{Name: "tag-heavy", Weights: scorer.Weights{Recency: 0.15, Frequency: 0.15, Tag: 0.7}},
		{Name: "default", Weights: scorer.DefaultWeights},
		{Name: "equal", Weights: scorer.Weights{Recency: 0.34, Frequency: 0.33, Tag: 0.33}},
		{Name: "recency-frequency", Weights: scorer.Weights{Recency: 0.45, Frequency: 0.45, Tag: 0.10}},
		{Name: "recency-tag", Weights: scorer.Weights{Recency: 0.45, Frequency: 0.10, Tag: 0.45}},
		{Name: "frequency-tag", Weights: scorer.Weights{Recency: 0.10, Frequency: 0.45, Tag: 0.45}},
	}
}

// Tuner is a Beta(1+hits, 1+misses)-posterior Thompson-sampling bandit
// over the fixed arm set.
type Tuner struct {
	mu   sync.Mutex
	arms []Arm
	rng  *rand.Rand
}

// New creates a Tuner with all 8 arms at their uninformative Beta(1,1)
// prior (zero hits, zero misses).
func New() *Tuner {
	return &Tuner{
		arms: defaultArms(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Select draws one sample per arm from its Beta posterior and returns the
// index and weights of the arm with the largest draw. The caller threads
// the returned index through the prediction batch so a later outcome can
// be attributed back to this exact arm via RecordFeedback.
func (t *Tuner) Select() (int, scorer.Weights) {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := 0
	bestDraw := -1.0
	for i, arm := range t.arms {
		draw := betaSample(t.rng, float64(1+arm.Hits), float64(1+arm.Misses))
		if draw > bestDraw {
			bestDraw = draw
			best = i
		}
	}
	return best, t.arms[best].Weights
}

// RecordFeedback increments the selected arm's hit or miss count.
// Out-of-range indices are ignored.
func (t *Tuner) RecordFeedback(armIdx int, hit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if armIdx < 0 || armIdx >= len(t.arms) {
		return
	}
	if hit {
		t.arms[armIdx].Hits++
	} else {
		t.arms[armIdx].Misses++
	}
}

// Best returns the index and weights of the arm with the largest
// posterior mean — pure exploitation, no sampling.
func (t *Tuner) Best() (int, scorer.Weights) {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := 0
	bestMean := -1.0
	for i, arm := range t.arms {
		mean := posteriorMean(arm)
		if mean > bestMean {
			bestMean = mean
			best = i
		}
	}
	return best, t.arms[best].Weights
}

// ArmStats reports one arm's posterior shape parameters and mean.
type ArmStats struct {
	Name    string  `json:"name"`
	Alpha   float64 `json:"alpha"`
	Beta    float64 `json:"beta"`
	Mean    float64 `json:"mean"`
	Samples int     `json:"samples"`
}

// Stats reports every arm's alpha, beta, posterior mean, and sample count.
func (t *Tuner) Stats() []ArmStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ArmStats, len(t.arms))
	for i, arm := range t.arms {
		alpha := float64(1 + arm.Hits)
		beta := float64(1 + arm.Misses)
		out[i] = ArmStats{
			Name:    arm.Name,
			Alpha:   alpha,
			Beta:    beta,
			Mean:    alpha / (alpha + beta),
			Samples: arm.Hits + arm.Misses,
		}
	}
	return out
}

// Arms returns a copy of the fixed arm set: name, weight triple, and
// current hit/miss counts.
func (t *Tuner) Arms() []Arm {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Arm, len(t.arms))
	copy(out, t.arms)
	return out
}

// Reset clears every arm's hit/miss counts back to the uninformative prior.
func (t *Tuner) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arms = defaultArms()
}

func posteriorMean(arm Arm) float64 {
	alpha := float64(1 + arm.Hits)
	beta := float64(1 + arm.Misses)
	return alpha / (alpha + beta)
}

// betaSample draws one sample from Beta(alpha, beta) via two independent
// Gamma(shape, 1) draws: Beta = X / (X + Y).
func betaSample(rng *rand.Rand, alpha, beta float64) float64 {
	x := gammaSample(rng, alpha)
	y := gammaSample(rng, beta)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// gammaSample draws one sample from Gamma(shape, 1) via Marsaglia and
// Tsang's method, boosting shapes below 1 per the standard trick
// (Gamma(shape+1) scaled by U^(1/shape)).
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
