package datasetcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

func TestCache_GetSet(t *testing.T) {
	c := New(8, time.Minute)
	ds := &models.Dataset{Pods: []models.Pod{{Namespace: "a", Name: "x"}}}

	_, ok := c.Get(1, "a")
	assert.False(t, ok)

	c.Set(1, "a", ds)
	got, ok := c.Get(1, "a")
	assert.True(t, ok)
	assert.Same(t, ds, got)

	_, ok = c.Get(2, "a")
	assert.False(t, ok, "other generation")

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Expires(t *testing.T) {
	c := New(8, 20*time.Millisecond)
	c.Set(1, "", &models.Dataset{})
	assert.Eventually(t, func() bool {
		_, ok := c.Get(1, "")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCache_Disabled(t *testing.T) {
	c := New(8, 0)
	c.Set(1, "a", &models.Dataset{})
	_, ok := c.Get(1, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New(2, time.Minute)
	c.Set(1, "a", &models.Dataset{})
	c.Set(1, "b", &models.Dataset{})
	c.Set(1, "c", &models.Dataset{})
	_, ok := c.Get(1, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}
