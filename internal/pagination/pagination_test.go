package pagination

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 12, 3},
		{24, 12, 2},
		{5, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TotalPages(tc.total, tc.size), "total=%d size=%d", tc.total, tc.size)
	}
}

func TestNewHoldsInvariants(t *testing.T) {
	for total := int64(0); total <= 40; total++ {
		for size := 1; size <= 13; size++ {
			items := make([]int, size+3)
			res := New(items, Request{Page: 1, Size: size}, total)

			require.LessOrEqual(t, len(res.Items), size)
			want := 0
			if total > 0 {
				want = int(math.Ceil(float64(total) / float64(size)))
			}
			require.Equal(t, want, res.Pagination.TotalPages)
		}
	}
}

func TestNewNeverReturnsNilItems(t *testing.T) {
	res := New[string](nil, Request{Page: 2, Size: 5}, 0)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"pagination":{"page":2,"size":5,"total_elements":0,"total_pages":0}}`, string(out))
}

func TestNormalize(t *testing.T) {
	got, err := Request{}.Normalize(12, 100)
	require.NoError(t, err)
	assert.Equal(t, Request{Page: 1, Size: 12}, got)

	got, err = Request{Page: 3, Size: 50}.Normalize(12, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ZeroBased())
	assert.Equal(t, 100, got.Offset())

	_, err = Request{Page: -1}.Normalize(12, 100)
	assert.ErrorIs(t, err, ErrInvalidPage)
	_, err = Request{Page: 1, Size: 101}.Normalize(12, 100)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestMapKeepsEnvelope(t *testing.T) {
	res := New([]int{1, 2}, Request{Page: 1, Size: 2}, 9)
	mapped := Map(res, func(i int) string { return string(rune('a' + i)) })
	assert.Equal(t, []string{"b", "c"}, mapped.Items)
	assert.Equal(t, res.Pagination, mapped.Pagination)
}
