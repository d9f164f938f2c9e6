package block

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rangecache/key"
	"github.com/IvanBrykalov/rangecache/policy"
)

func sizeOf(n int64) policy.SizeFunc {
	return func() (int64, error) { return n, nil }
}

func TestPlanner_ScenarioClipsLastBlock(t *testing.T) {
	t.Parallel()

	p, err := New(40, key.New(""))
	require.NoError(t, err)
	assert.Equal(t, policy.KindBlock, p.Kind())

	plan, err := p.Plan(policy.Request{Path: "obj", Offset: 30, Length: 50}, sizeOf(100))
	require.NoError(t, err)
	require.False(t, plan.Bypass)

	want := []policy.Unit{
		{Key: "obj-0", Path: "obj", Offset: 0, Length: 40},
		{Key: "obj-1", Path: "obj", Offset: 40, Length: 40},
		{Key: "obj-2", Path: "obj", Offset: 80, Length: 20},
	}
	assert.Equal(t, want, plan.Units)
}

func TestPlanner_Table(t *testing.T) {
	t.Parallel()

	p, err := New(10, key.New(""))
	require.NoError(t, err)

	cases := []struct {
		name    string
		off, n  int64
		size    int64
		indices []int64
	}{
		{"inside one block", 2, 5, 100, []int64{0}},
		{"spans two", 8, 5, 100, []int64{0, 1}},
		{"ends on boundary includes next", 0, 10, 100, []int64{0, 1}},
		{"ends at eof", 95, 5, 100, []int64{9}},
		{"whole object", 0, 100, 100, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"short object", 0, 3, 3, []int64{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := p.Plan(policy.Request{Path: "o", Offset: tc.off, Length: tc.n}, sizeOf(tc.size))
			require.NoError(t, err)
			got := make([]int64, 0, len(plan.Units))
			for _, u := range plan.Units {
				got = append(got, u.Offset/10)
				assert.LessOrEqual(t, u.End(), tc.size, "unit past end-of-object")
			}
			assert.Equal(t, tc.indices, got)
		})
	}
}

// Units never overlap, ascend, and cover the request.
func TestPlanner_DisjointAndCovering(t *testing.T) {
	t.Parallel()

	const size = 1000
	for _, bs := range []int64{1, 7, 64, 333, 1000, 4096} {
		p, err := New(bs, key.New(""))
		require.NoError(t, err)
		for off := int64(0); off < size; off += 37 {
			for _, n := range []int64{1, 13, 250, size - off} {
				if off+n > size {
					continue
				}
				plan, err := p.Plan(policy.Request{Path: "o", Offset: off, Length: n}, sizeOf(size))
				require.NoError(t, err)
				require.NotEmpty(t, plan.Units)

				assert.LessOrEqual(t, plan.Units[0].Offset, off)
				assert.GreaterOrEqual(t, plan.Units[len(plan.Units)-1].End(), off+n)
				for i := 1; i < len(plan.Units); i++ {
					assert.Equal(t, plan.Units[i-1].End(), plan.Units[i].Offset, "bs=%d off=%d n=%d", bs, off, n)
				}
			}
		}
	}
}

func TestPlanner_OutOfRange(t *testing.T) {
	t.Parallel()

	p, err := New(10, key.New(""))
	require.NoError(t, err)

	_, err = p.Plan(policy.Request{Path: "o", Offset: 95, Length: 10}, sizeOf(100))
	assert.ErrorIs(t, err, policy.ErrOutOfRange)

	_, err = p.Plan(policy.Request{Path: "o", Offset: 100, Length: 1}, sizeOf(100))
	assert.ErrorIs(t, err, policy.ErrOutOfRange)

	// Offset+Length wraps negative; it must not slip past the size check.
	_, err = p.Plan(policy.Request{Path: "o", Offset: 10, Length: math.MaxInt64}, sizeOf(100))
	assert.ErrorIs(t, err, policy.ErrOutOfRange)
}

func TestRequest_Within(t *testing.T) {
	t.Parallel()

	assert.True(t, policy.Request{Offset: 0, Length: 100}.Within(100))
	assert.True(t, policy.Request{Offset: 100, Length: 0}.Within(100))
	assert.False(t, policy.Request{Offset: 90, Length: 11}.Within(100))
	assert.False(t, policy.Request{Offset: 101, Length: 0}.Within(100))
	assert.False(t, policy.Request{Offset: 1, Length: math.MaxInt64}.Within(math.MaxInt64))
	assert.True(t, policy.Request{Offset: 0, Length: math.MaxInt64}.Within(math.MaxInt64))
}

func TestPlanner_ZeroLengthSkipsSize(t *testing.T) {
	t.Parallel()

	p, err := New(10, key.New(""))
	require.NoError(t, err)

	plan, err := p.Plan(policy.Request{Path: "o", Offset: 5}, func() (int64, error) {
		t.Fatal("size must not be queried")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Units)
}

func TestPlanner_SizeErrorPropagates(t *testing.T) {
	t.Parallel()

	p, err := New(10, key.New(""))
	require.NoError(t, err)

	boom := errors.New("stat failed")
	_, err = p.Plan(policy.Request{Path: "o", Length: 1}, func() (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPlanner_MaxBlocksBypass(t *testing.T) {
	t.Parallel()

	p, err := New(10, key.New(""), WithMaxBlocksPerRead(2))
	require.NoError(t, err)

	plan, err := p.Plan(policy.Request{Path: "o", Offset: 0, Length: 15}, sizeOf(100))
	require.NoError(t, err)
	assert.False(t, plan.Bypass)
	assert.Len(t, plan.Units, 2)

	plan, err = p.Plan(policy.Request{Path: "o", Offset: 0, Length: 35}, sizeOf(100))
	require.NoError(t, err)
	assert.True(t, plan.Bypass)
	assert.Empty(t, plan.Units)
}

func TestNew_RejectsNonPositive(t *testing.T) {
	t.Parallel()

	_, err := New(0, key.New(""))
	assert.Error(t, err)
	_, err = New(-1, key.New(""))
	assert.Error(t, err)
}
