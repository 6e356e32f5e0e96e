package replay

import "math/rand"

// DefaultWindowSize is W from §4.4's defaults.
const DefaultWindowSize = 1024

// Window is the bounded FIFO of up to W records the trainer samples
// minibatches from (§3 "Replay window"). Not safe for concurrent use; the
// trainer's main thread is its sole writer and reader (§5).
type Window struct {
	capacity int
	records  []Record
}

// NewWindow creates an empty window holding at most capacity records.
func NewWindow(capacity int) *Window {
	return &Window{capacity: capacity}
}

// Append adds a record, evicting the oldest one if the window is full.
func (w *Window) Append(r Record) {
	w.records = append(w.records, r)
	if over := len(w.records) - w.capacity; over > 0 {
		w.records = w.records[over:]
	}
}

// Len returns the current number of held records.
func (w *Window) Len() int { return len(w.records) }

// Full reports whether the window has reached capacity.
func (w *Window) Full() bool { return len(w.records) >= w.capacity }

// Sample draws m indices uniformly with replacement and returns the
// corresponding records, stacked for a training minibatch (§4.4 step 3).
func (w *Window) Sample(rnd *rand.Rand, m int) []Record {
	out := make([]Record, m)
	for i := 0; i < m; i++ {
		out[i] = w.records[rnd.Intn(len(w.records))]
	}
	return out
}

// Stack flattens a slice of records into the three batched buffers
// dual.Network.Forward/Train expect: images, values (z) and policies (π).
func Stack(records []Record) (images, values, policies []float32) {
	for _, r := range records {
		images = append(images, r.Image...)
		values = append(values, r.Value)
		policies = append(policies, r.Policy...)
	}
	return
}
