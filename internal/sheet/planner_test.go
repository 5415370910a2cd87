package sheet

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxPhotos_ContractValues(t *testing.T) {
	n, err := MaxPhotos(A4)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	n, err = MaxPhotos(Letter)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestMaxPhotos_OutOfEnumeration(t *testing.T) {
	for _, p := range []PageSize{0, 3, -1} {
		_, err := MaxPhotos(p)
		assert.True(t, errors.Is(err, ErrInvalidPageSize), "page %d", int(p))
	}
	assert.Panics(t, func() { MustMaxPhotos(PageSize(42)) })
}

func TestAnalyticMaxPhotos_AgreesWithLookup(t *testing.T) {
	for _, p := range PageSizes {
		d, err := p.Dimensions()
		require.NoError(t, err)
		assert.Equal(t, MustMaxPhotos(p), AnalyticMaxPhotos(d, PhotoCell, DefaultLayout), p.String())
	}
	assert.Equal(t, 0, AnalyticMaxPhotos(Dimensions{WidthMM: 20, HeightMM: 20}, PhotoCell, DefaultLayout))
}

func TestClampQuantity_Boundaries(t *testing.T) {
	assert.Equal(t, 1, ClampQuantity(0, 30))
	assert.Equal(t, 30, ClampQuantity(31, 30))
	assert.Equal(t, 5, ClampQuantity(5, 30))
	assert.Equal(t, 1, ClampQuantity(-100, 30))
	assert.Equal(t, 25, ClampQuantity(30, 25))
}

func TestClampQuantity_Idempotent(t *testing.T) {
	for max := 1; max <= 30; max++ {
		for x := -50; x <= 80; x++ {
			once := ClampQuantity(x, max)
			assert.Equal(t, once, ClampQuantity(once, max), "x=%d max=%d", x, max)
			assert.GreaterOrEqual(t, once, 1)
			assert.LessOrEqual(t, once, max)
		}
	}
}

func TestClampInput(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		previous int
		want     int
	}{
		{"plain", "12", 5, 12},
		{"padded", " 7 ", 5, 7},
		{"too large", "99", 5, 30},
		{"zero", "0", 5, 1},
		{"negative", "-3", 5, 1},
		{"empty keeps previous", "", 5, 5},
		{"letters keep previous", "abc", 9, 9},
		{"nan keeps previous", "NaN", 4, 4},
		{"inf keeps previous", "Inf", 4, 4},
		{"fraction truncates", "3.9", 5, 3},
		{"numeric prefix", "12abc", 5, 12},
		{"exponent ignored", "2e9", 5, 2},
		{"sign only keeps previous", "-", 6, 6},
		{"overflow saturates", "99999999999999999999999", 5, 30},
		{"negative overflow", "-99999999999999999999999", 5, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClampInput(tc.text, tc.previous, 30))
		})
	}
}

func TestParsePageSize(t *testing.T) {
	p, err := ParsePageSize("a4")
	require.NoError(t, err)
	assert.Equal(t, A4, p)

	p, err = ParsePageSize("Letter")
	require.NoError(t, err)
	assert.Equal(t, Letter, p)

	_, err = ParsePageSize("B5")
	assert.ErrorIs(t, err, ErrInvalidPageSize)

	_, err = PageSize(9).Dimensions()
	assert.ErrorIs(t, err, ErrInvalidPageSize)
	assert.Equal(t, "PageSize(9)", PageSize(9).String())
}

func TestPageSize_JSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Page PageSize `json:"page"`
	}{Letter})
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":"Letter"}`, string(out))

	var in struct {
		Page PageSize `json:"page"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"page":"a4"}`), &in))
	assert.Equal(t, A4, in.Page)

	_, err = json.Marshal(PageSize(0))
	assert.Error(t, err)
}
