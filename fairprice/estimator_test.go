package fairprice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMedianOffsetEvenCount(t *testing.T) {
	e := New(10, 1)
	require.True(t, e.AddSample(d("100.2"), d("100.0"), 1))
	require.True(t, e.AddSample(d("100.6"), d("100.0"), 2))
	offset, n := e.RawMedianOffset()
	require.Equal(t, 2, n)
	assert.True(t, offset.Equal(d("0.4")))
}

func TestAddSampleRejectsSameSecond(t *testing.T) {
	e := New(10, 1)
	require.True(t, e.AddSample(d("100.2"), d("100.0"), 1))
	require.False(t, e.AddSample(d("101.2"), d("100.0"), 1))
	_, n := e.RawMedianOffset()
	assert.Equal(t, 1, n)
}

func TestMedianOffsetBelowMinSamplesFallsBackToZero(t *testing.T) {
	e := New(10, 5)
	require.True(t, e.AddSample(d("101.0"), d("100.0"), 1))
	require.True(t, e.AddSample(d("102.0"), d("100.0"), 2))
	assert.True(t, e.MedianOffset().IsZero())
	assert.True(t, e.FairPrice(d("50.0")).Equal(d("50.0")))
}

func TestFairPriceAppliesOffset(t *testing.T) {
	e := New(3, 1)
	require.True(t, e.AddSample(d("100.5"), d("100.0"), 1))
	fp := e.FairPrice(d("200.0"))
	assert.True(t, fp.Equal(d("199.5")))
}

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	e := New(2, 1)
	require.True(t, e.AddSample(d("101.0"), d("100.0"), 1))
	require.True(t, e.AddSample(d("102.0"), d("100.0"), 2))
	require.True(t, e.AddSample(d("103.0"), d("100.0"), 3))
	assert.Equal(t, 2, e.SampleCount())
	offset, n := e.RawMedianOffset()
	require.Equal(t, 2, n)
	assert.True(t, offset.Equal(d("2.5")))
}
