package fxver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archref/resolver/internal/fxver"
)

func TestParse(t *testing.T) {
	v, err := fxver.Parse("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, fxver.Version{Major: 1, Minor: 2, Build: 3, Revision: 4}, v)

	v, err = fxver.Parse("1.2")
	require.NoError(t, err)
	assert.Equal(t, fxver.Version{Major: 1, Minor: 2}, v)

	v, err = fxver.Parse("")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = fxver.Parse("1.2.3.4.5")
	assert.Error(t, err)

	_, err = fxver.Parse("1.x.0.0")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0.0", "1.0.0.0", 0},
		{"1.0.0.0", "2.0.0.0", -1},
		{"2.0.0.0", "1.0.0.0", 1},
		{"1.2.0.0", "1.1.9.9", 1},
		{"1.0", "1.0.0.0", 0},
	}
	for _, c := range cases {
		a := fxver.MustParse(c.a)
		b := fxver.MustParse(c.b)
		assert.Equalf(t, c.want, a.Compare(b), "%s vs %s", c.a, c.b)
	}
}

func TestRangeContains(t *testing.T) {
	r, err := fxver.ParseRange("0.0.0.0-1.5.0.0")
	require.NoError(t, err)
	assert.True(t, r.Contains(fxver.MustParse("1.5.0.0")))
	assert.True(t, r.Contains(fxver.MustParse("0.0.0.0")))
	assert.False(t, r.Contains(fxver.MustParse("1.5.0.1")))

	single, err := fxver.ParseRange("2.0.0.0")
	require.NoError(t, err)
	assert.Equal(t, fxver.MustParse("2.0.0.0"), single.Low)
	assert.Equal(t, fxver.MustParse("2.0.0.0"), single.High)

	unbounded := fxver.Range{Low: fxver.MustParse("1.0.0.0"), Unbounded: true}
	assert.True(t, unbounded.Contains(fxver.MustParse("999.0.0.0")))
	assert.False(t, unbounded.Contains(fxver.MustParse("0.9.0.0")))
}
