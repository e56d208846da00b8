package engine

import (
	"math"
	"math/rand"
)

const (
	sentimentDecay = 0.90
	sentimentFloor = 0.05
	injectChance   = 0.05
	injectSpan     = 0.5
)

var eventKinds = []string{"buzz", "rumor", "tip"}

// Event is one transient sentiment impulse.
type Event struct {
	Kind   string  `json:"kind"`
	Impact float64 `json:"impact"`
}

// Sentiment is a decaying stochastic perturbation source. Its aggregate
// is telemetry only; the decision path never reads it.
type Sentiment struct {
	rng    *rand.Rand
	events []Event
}

func NewSentiment(rng *rand.Rand) *Sentiment {
	return &Sentiment{rng: rng}
}

// Inject adds an impulse directly, bypassing the random injection.
func (s *Sentiment) Inject(kind string, impact float64) {
	s.events = append(s.events, Event{Kind: kind, Impact: impact})
}

// Tick ages the event pool: decay everything, prune the faded, maybe
// spawn a fresh impulse.
func (s *Sentiment) Tick() {
	s.decay()
	s.maybeInject()
}

func (s *Sentiment) decay() {
	kept := s.events[:0]
	for _, ev := range s.events {
		ev.Impact *= sentimentDecay
		if math.Abs(ev.Impact) >= sentimentFloor {
			kept = append(kept, ev)
		}
	}
	s.events = kept
}

func (s *Sentiment) maybeInject() {
	if s.rng.Float64() >= injectChance {
		return
	}
	kind := eventKinds[s.rng.Intn(len(eventKinds))]
	impact := s.rng.Float64()*2*injectSpan - injectSpan
	s.events = append(s.events, Event{Kind: kind, Impact: impact})
}

// Aggregate sums the live impacts.
func (s *Sentiment) Aggregate() float64 {
	var sum float64
	for _, ev := range s.events {
		sum += ev.Impact
	}
	return sum
}

// Size is the live event count.
func (s *Sentiment) Size() int { return len(s.events) }
