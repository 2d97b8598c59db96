package bloomfilter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndContains(t *testing.T) {
	f := New(1000, 0.001)

	f.Add("alice@example.com", true)

	assert.True(t, f.Contains("alice@example.com"))
	assert.False(t, f.Contains("bob@example.com"))
}

func TestAddWithoutCheckDoesNotDedup(t *testing.T) {
	f := New(10, 0.001)

	for i := 0; i < 5; i++ {
		f.Add("same-value", false)
	}

	assert.True(t, f.Contains("same-value"))
}

func TestGrowthCreatesSubFilters(t *testing.T) {
	f := New(4, 0.1)

	assert.Equal(t, 1, f.SubFilterCount())

	for i := 0; i < 20; i++ {
		f.Add(fmt.Sprintf("value-%d", i), false)
	}

	assert.True(t, f.SubFilterCount() > 1, "expected growth to add sub-filters once capacity was exceeded")
}

func TestContainsScansAllSubFilters(t *testing.T) {
	f := New(2, 0.01)

	f.Add("first", true)
	f.Add("second", true)
	f.Add("third", true)
	f.Add("fourth", true)

	assert.True(t, f.SubFilterCount() > 1)
	assert.True(t, f.Contains("first"))
	assert.True(t, f.Contains("fourth"))
}

func TestDefaultsAppliedForZeroValues(t *testing.T) {
	f := New(0, 0)

	assert.Equal(t, uint(1000), f.capacity)
	assert.Equal(t, 0.000001, f.errorRate)
}
