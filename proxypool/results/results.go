package results

import (
	"errors"

	"liuproxy_harvest/internal/shared/logger"
	"liuproxy_harvest/proxypool/model"
)

// Collection names shared by the aggregator and persisters.
const (
	CollectionAll       = "all"
	CollectionWorking   = "working"
	CollectionPotential = "potential"
)

// Persister 定义了结果的持久化接口。
type Persister interface {
	// Write replaces the whole collection with a titled snapshot.
	Write(collection string, items []string, title string) error
	// Append adds one labelled item to the collection.
	Append(collection, item, label string) error
}

// Observer is notified of every outcome the aggregator consumes.
type Observer interface {
	OnOutcome(o model.Outcome, s Summary)
}

// Summary 是一次运行的结果汇总。
type Summary struct {
	Working       []string `json:"working"`
	Potential     []string `json:"potential"`
	Failed        int      `json:"failed"`
	Total         int      `json:"total"`
	PersistErrors int      `json:"persistErrors"`
}

// Aggregator is the single consumer of a run's outcome stream. It owns the
// result collections; nothing else may touch them while Consume runs.
type Aggregator struct {
	persister Persister
	observer  Observer

	summary Summary
	seen    map[string]struct{}
}

func NewAggregator(persister Persister, observer Observer) *Aggregator {
	a := &Aggregator{persister: persister, observer: observer}
	a.Reset(0)
	return a
}

// Reset clears the collections for a new run of total candidates.
func (a *Aggregator) Reset(total int) {
	a.summary = Summary{Total: total}
	a.seen = make(map[string]struct{})
}

// Consume drains outcomes until the channel is closed and returns the
// summary of the run.
func (a *Aggregator) Consume(outcomes <-chan model.Outcome) Summary {
	for o := range outcomes {
		a.record(o)
	}
	return a.Summary()
}

// Summary returns a copy of the current collections.
func (a *Aggregator) Summary() Summary {
	s := a.summary
	s.Working = append([]string(nil), a.summary.Working...)
	s.Potential = append([]string(nil), a.summary.Potential...)
	return s
}

func (a *Aggregator) record(o model.Outcome) {
	l := logger.WithComponent("Harvest/Results")

	switch o.State {
	case model.StateWorking:
		a.add(CollectionWorking, o)
	case model.StatePotential:
		a.add(CollectionPotential, o)
	default:
		a.summary.Failed++
		l.Debug().Err(o.Err).Msg("Candidate failed classification.")
	}

	if a.observer != nil {
		a.observer.OnOutcome(o, a.Summary())
	}
}

func (a *Aggregator) add(collection string, o model.Outcome) {
	l := logger.WithComponent("Harvest/Results")
	if o.Descriptor == nil {
		a.summary.Failed++
		return
	}

	raw := o.Descriptor.Raw()
	if _, dup := a.seen[raw]; dup {
		return
	}
	a.seen[raw] = struct{}{}

	if collection == CollectionWorking {
		a.summary.Working = append(a.summary.Working, raw)
		l.Info().Str("endpoint", o.Descriptor.HostPort()).Str("scheme", string(o.Descriptor.Scheme())).Str("stage", o.Stage.String()).Msg("Working endpoint found.")
	} else {
		a.summary.Potential = append(a.summary.Potential, raw)
	}

	if a.persister == nil {
		return
	}
	if err := a.persister.Append(collection, raw, o.Descriptor.Label()); err != nil {
		a.summary.PersistErrors++
		l.Error().Err(err).Str("collection", collection).Msg("Failed to persist result, continuing.")
	}
}

// MultiPersister fans every call out to all of its members. Every member is
// called even when an earlier one fails; the failures are joined.
type MultiPersister []Persister

func (mp MultiPersister) Write(collection string, items []string, title string) error {
	var errs []error
	for _, p := range mp {
		if err := p.Write(collection, items, title); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mp MultiPersister) Append(collection, item, label string) error {
	var errs []error
	for _, p := range mp {
		if err := p.Append(collection, item, label); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
