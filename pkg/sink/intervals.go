package sink

import (
	"time"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// DefaultDBBatchSize is the interval batch threshold used by persistence
// sinks.
const DefaultDBBatchSize = 1000

// DefaultTTYBatchSize is the interval batch threshold used by terminal
// sinks.
const DefaultTTYBatchSize = 10

// DefaultHitInterval is reported as the batch span when a batch holds a
// single sample and no span can be measured.
const DefaultHitInterval = 120 * time.Second

type intervalKey struct {
	tag      uint64
	instance uint64
}

type intervalSlot struct {
	start time.Time
	sum   time.Duration
	min   time.Duration
	max   time.Duration
	count int64
}

// IntervalAggregator collapses consecutive interval samples with the same
// (tag, instance) key into batch aggregates. Slots are retained across
// resets so steady-state operation does not allocate.
type IntervalAggregator struct {
	batchSize   int64
	defaultSpan time.Duration
	now         func() time.Time
	slots       map[intervalKey]*intervalSlot
}

// NewIntervalAggregator returns an aggregator emitting one aggregate per
// batchSize samples per key.
func NewIntervalAggregator(batchSize int, defaultSpan time.Duration) *IntervalAggregator {
	if batchSize < 1 {
		batchSize = 1
	}
	if defaultSpan <= 0 {
		defaultSpan = DefaultHitInterval
	}
	return &IntervalAggregator{
		batchSize:   int64(batchSize),
		defaultSpan: defaultSpan,
		now:         time.Now,
		slots:       make(map[intervalKey]*intervalSlot),
	}
}

// Update accumulates one sample. It returns a non-nil aggregate exactly
// when the sample completes a batch; the caller must Reset the aggregate's
// key after consuming it.
func (a *IntervalAggregator) Update(info *event.IntervalInfo) *event.AggregateIntervalInfo {
	key := intervalKey{tag: info.Tag.Value(), instance: info.Instance}
	slot, ok := a.slots[key]
	if !ok {
		slot = &intervalSlot{}
		a.slots[key] = slot
	}
	if slot.count == 0 {
		slot.start = a.now()
		slot.min = info.Duration
		slot.max = info.Duration
	} else {
		if info.Duration < slot.min {
			slot.min = info.Duration
		}
		if info.Duration > slot.max {
			slot.max = info.Duration
		}
	}
	slot.sum += info.Duration
	slot.count++
	if slot.count < a.batchSize {
		return nil
	}
	span := a.now().Sub(slot.start)
	if slot.count == 1 {
		span = a.defaultSpan
	}
	return &event.AggregateIntervalInfo{
		Tag:         info.Tag,
		Instance:    info.Instance,
		HitCount:    slot.count,
		HitInterval: span,
		MinDuration: slot.min,
		AvgDuration: slot.sum / time.Duration(slot.count),
		MaxDuration: slot.max,
	}
}

// Reset zeroes the slot behind a consumed aggregate. The slot itself stays
// allocated for the next batch.
func (a *IntervalAggregator) Reset(agg *event.AggregateIntervalInfo) {
	key := intervalKey{tag: agg.Tag.Value(), instance: agg.Instance}
	if slot, ok := a.slots[key]; ok {
		*slot = intervalSlot{}
	}
}
