// Package bloomfilter implements a growing bloom filter used to check
// uniqueness of generated field values without keeping every value in memory.
package bloomfilter

import (
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a bloom filter that grows by chaining sub-filters of increasing
// capacity as it fills up, instead of resizing in place. Each new sub-filter
// has 4x the capacity and 0.9x the error rate of the one before it.
// Membership is checked newest-sub-filter-first, since most lookups are
// for values added recently.
type Filter struct {
	capacity  uint
	errorRate float64
	filters   []*bloom.BloomFilter
	counter   uint
}

// New creates a Filter with the given starting capacity and false-positive
// error rate.
func New(capacity uint, errorRate float64) *Filter {
	if capacity == 0 {
		capacity = 1000
	}
	if errorRate <= 0 {
		errorRate = 0.000001
	}
	f := &Filter{capacity: capacity, errorRate: errorRate}
	f.filters = append(f.filters, bloom.NewWithEstimates(f.capacity, f.errorRate))
	return f
}

// Add records value as seen. If check is true and the value is already
// believed to be present, Add is a no-op, matching the Python reference's
// add(value, check=True) contract used to avoid double-counting capacity
// when a caller has already called Contains.
func (f *Filter) Add(value string, check bool) {
	if check && f.Contains(value) {
		return
	}

	f.counter++
	if f.counter >= f.capacity {
		f.grow()
		f.counter = 1
	}

	f.filters[len(f.filters)-1].Add([]byte(value))
}

// Contains reports whether value has been added before, scanning the
// newest sub-filter first.
func (f *Filter) Contains(value string) bool {
	data := []byte(value)
	for i := len(f.filters) - 1; i >= 0; i-- {
		if f.filters[i].Test(data) {
			return true
		}
	}
	return false
}

// grow appends a new sub-filter with 4x the capacity and 0.9x the error
// rate of the previous one.
func (f *Filter) grow() {
	f.capacity *= 4
	f.errorRate *= 0.9
	f.filters = append(f.filters, bloom.NewWithEstimates(f.capacity, f.errorRate))
}

// SubFilterCount returns the number of chained sub-filters, exposed for tests
// that need to assert the growth policy fired.
func (f *Filter) SubFilterCount() int {
	return len(f.filters)
}

// String renders filter stats for debug logging.
func (f *Filter) String() string {
	return fmt.Sprintf("bloomfilter{subfilters=%d, capacity=%d, error_rate=%g}", len(f.filters), f.capacity, f.errorRate)
}
