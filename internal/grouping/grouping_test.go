package grouping

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i+1)
	}
	return out
}

func TestDistribute_TooFewParticipants(t *testing.T) {
	req := require.New(t)

	groups, err := Distribute([]string{}, 4)
	req.NoError(err)
	req.Empty(groups)

	groups, err = Distribute([]string{"p1"}, 4)
	req.NoError(err)
	req.Empty(groups)
}

func TestDistribute_InvalidCapacity(t *testing.T) {
	req := require.New(t)

	_, err := Distribute(names(5), 0)
	req.ErrorIs(err, ErrInvalidCapacity)

	_, err = Distribute(names(5), -3)
	req.ErrorIs(err, ErrInvalidCapacity)
}

func TestDistribute_FiveByTwo_MergesSingleton(t *testing.T) {
	req := require.New(t)

	// 5 participants at capacity 2 would slice into 2,2,1; the lone
	// trailing member must be merged, never left alone.
	groups, err := Distribute(names(5), 2)
	req.NoError(err)
	req.Len(groups, 2)
	req.Equal([]string{"p1", "p2", "p5"}, groups[0])
	req.Equal([]string{"p3", "p4"}, groups[1])
}

func TestDistribute_SevenByThree(t *testing.T) {
	req := require.New(t)

	// k = ceil(7/3) = 3, base 2, remainder 1: the first room takes the
	// extra member.
	groups, err := Distribute(names(7), 3)
	req.NoError(err)
	req.Len(groups, 3)
	req.Equal([]string{"p1", "p2", "p3"}, groups[0])
	req.Equal([]string{"p4", "p5"}, groups[1])
	req.Equal([]string{"p6", "p7"}, groups[2])
}

func TestDistribute_ExactFit(t *testing.T) {
	req := require.New(t)

	groups, err := Distribute(names(6), 3)
	req.NoError(err)
	req.Len(groups, 2)
	req.Equal([]string{"p1", "p2", "p3"}, groups[0])
	req.Equal([]string{"p4", "p5", "p6"}, groups[1])
}

func TestDistribute_TwoParticipantsAnyCapacity(t *testing.T) {
	req := require.New(t)

	groups, err := Distribute(names(2), 1)
	req.NoError(err)
	req.Len(groups, 1)
	req.Equal([]string{"p1", "p2"}, groups[0])
}

func TestDistribute_DoesNotMutateInput(t *testing.T) {
	req := require.New(t)

	in := names(5)
	_, err := Distribute(in, 2)
	req.NoError(err)
	req.Equal(names(5), in)
}

func TestDistribute_Properties(t *testing.T) {
	req := require.New(t)

	for n := 2; n <= 40; n++ {
		for c := 1; c <= 10; c++ {
			in := names(n)
			groups, err := Distribute(in, c)
			req.NoError(err)
			req.NotEmpty(groups, "n=%d c=%d", n, c)

			minSize, maxSize := n, 0
			var flat []string
			for _, g := range groups {
				req.GreaterOrEqual(len(g), 2, "n=%d c=%d", n, c)
				if len(g) < minSize {
					minSize = len(g)
				}
				if len(g) > maxSize {
					maxSize = len(g)
				}
				flat = append(flat, g...)
			}
			// Sizes stay balanced: the singleton merge can push one
			// room a single member past the rest.
			req.LessOrEqual(maxSize-minSize, 1, "n=%d c=%d sizes unbalanced", n, c)
			// Union preserves the input multiset; order is preserved
			// within each group, and groups cover every participant
			// exactly once.
			req.ElementsMatch(in, flat, "n=%d c=%d", n, c)
		}
	}
}

func TestDistribute_Deterministic(t *testing.T) {
	req := require.New(t)

	a, err := Distribute(names(17), 4)
	req.NoError(err)
	b, err := Distribute(names(17), 4)
	req.NoError(err)
	req.Equal(a, b)
}
