package engine

import "sync/atomic"

// Stats is one generator's counters at one instant.
type Stats struct {
	Generator  string `json:"generator"`
	Failed     uint64 `json:"failed"`
	Total      uint64 `json:"total"`
	Undersized uint64 `json:"undersized"`
}

// Snapshot is a point-in-time copy of every generator's counters, in
// registry order.
type Snapshot []Stats

// Totals sums the snapshot across generators.
func (s Snapshot) Totals() Stats {
	var sum Stats
	for _, st := range s {
		sum.Failed += st.Failed
		sum.Total += st.Total
		sum.Undersized += st.Undersized
	}

	return sum
}

// Counters holds the per-generator trial counters. Each slot is updated with
// independent atomic adds; no lock is taken.
//
// Writers add total, then failed, then undersized; readers load in the
// reverse order. Since every counter only grows, a reader therefore always
// observes undersized <= failed <= total.
type Counters struct {
	names []string
	slots []slot
}

type slot struct {
	total      atomic.Uint64
	failed     atomic.Uint64
	undersized atomic.Uint64
}

func newCounters(names []string) *Counters {
	return &Counters{names: names, slots: make([]slot, len(names))}
}

// record accounts one finished trial for the generator at index i.
func (c *Counters) record(i int, failed, undersized bool) {
	s := &c.slots[i]
	s.total.Add(1)

	if failed {
		s.failed.Add(1)

		if undersized {
			s.undersized.Add(1)
		}
	}
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	out := make(Snapshot, len(c.slots))
	for i := range c.slots {
		s := &c.slots[i]
		undersized := s.undersized.Load()
		failed := s.failed.Load()
		total := s.total.Load()

		out[i] = Stats{
			Generator:  c.names[i],
			Failed:     failed,
			Total:      total,
			Undersized: undersized,
		}
	}

	return out
}
