package useragent_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/listing-enricher/internal/useragent"
)

func TestPicker_Deterministic(t *testing.T) {
	p := useragent.Picker{IntN: func(n int) int { return n - 1 }}

	assert.Equal(t, useragent.Chrome[len(useragent.Chrome)-1], p.UserAgent())

	h := p.Headers()
	assert.Equal(t, useragent.Chrome[len(useragent.Chrome)-1], h.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.9,es;q=0.7", h.Get("Accept-Language"))
	assert.Contains(t, h.Get("Accept"), "text/html")
	assert.Empty(t, h.Get("Accept-Encoding"))
}

func TestPicker_DefaultRandomStaysInPool(t *testing.T) {
	var p useragent.Picker
	for range 50 {
		assert.True(t, slices.Contains(useragent.Chrome, p.UserAgent()))
	}
	assert.Contains(t, p.Extra(), "Accept-Language")
}
