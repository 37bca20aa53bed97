package segment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftrans/pkg/contract"
)

func sentencesText(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("Sentence number %d ends here.", i)
	}
	return strings.Join(parts, " ")
}

func collect(t *testing.T, s *Segmenter, p contract.Page, rng *contract.Range) []contract.Chunk {
	t.Helper()
	var got []contract.Chunk
	_, _, err := s.Segment(context.Background(), p, rng, func(c contract.Chunk) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	return got
}

// 每页 N 句 → ceil(N/5) 块，末块为余数（整除时为 5）。
func TestSegmentChunkSizes(t *testing.T) {
	s := New(Rule{}, 5)
	for _, n := range []int{0, 1, 4, 5, 6, 10, 11, 23} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			chunks := collect(t, s, contract.Page{ID: 3, Text: sentencesText(n)}, nil)
			require.Len(t, chunks, (n+4)/5)
			total := 0
			for i, c := range chunks {
				assert.Equal(t, contract.ChunkKey{Page: 3, Index: i}, c.Key)
				if i < len(chunks)-1 {
					assert.Equal(t, 5, c.Sentences)
				}
				total += c.Sentences
			}
			assert.Equal(t, n, total)
			if n > 0 {
				want := n % 5
				if want == 0 {
					want = 5
				}
				assert.Equal(t, want, chunks[len(chunks)-1].Sentences)
			}
		})
	}
}

func TestSegmentReturnsLast(t *testing.T) {
	s := New(Rule{}, 2)
	last, ok, err := s.Segment(context.Background(), contract.Page{ID: 0, Text: "One. Two. Three."}, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contract.ChunkKey{Page: 0, Index: 1}, last.Key)
	assert.Equal(t, "Three.", last.Text)

	_, ok, err = s.Segment(context.Background(), contract.Page{ID: 0, Text: "  "}, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	in := "See Fig. 2 and fig. 3.\x02x\x00y"
	assert.Equal(t, "See Fig 2 and fig 3.-x\x00y", Normalize(in, false))
	assert.Equal(t, "See Fig 2 and fig 3.-x y", Normalize(in, true))
}

func TestRetainBoundaries(t *testing.T) {
	lines := []string{"intro", "Abstract begins", "body", "Abstract again", "tail", "Conclusion end", "refs"}
	cases := []struct {
		name string
		page contract.PageID
		rng  contract.Range
		want []string
	}{
		{"start page keeps from last begin", 1, contract.Range{StartPage: 1, EndPage: 4, Begin: "Abstract", End: "x"},
			[]string{"Abstract again", "tail", "Conclusion end", "refs"}},
		{"end page keeps through end", 4, contract.Range{StartPage: 1, EndPage: 4, Begin: "x", End: "Conclusion"},
			[]string{"intro", "Abstract begins", "body", "Abstract again", "tail", "Conclusion end"}},
		{"middle page keeps all", 2, contract.Range{StartPage: 1, EndPage: 4, Begin: "x", End: "y"}, lines},
		{"same page applies both", 1, contract.Range{StartPage: 1, EndPage: 1, Begin: "body", End: "tail"},
			[]string{"body", "Abstract again", "tail"}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Retain(lines, tt.page, &tt.rng)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetainAnchorMissing(t *testing.T) {
	_, err := Retain([]string{"a", "b"}, 2, &contract.Range{StartPage: 2, EndPage: 3, Begin: "zzz"})
	require.ErrorIs(t, err, contract.ErrAnchorNotFound)
	var ae *contract.AnchorError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "begin", ae.Role)
	assert.Equal(t, contract.PageID(2), ae.Page)

	_, err = Retain([]string{"a", "b"}, 3, &contract.Range{StartPage: 2, EndPage: 3, End: "zzz"})
	require.ErrorIs(t, err, contract.ErrAnchorNotFound)
}

func TestSegmentWithRange(t *testing.T) {
	text := strings.Join([]string{"Header line.", "Start here. Keep one.", "Keep two."}, LineBreak)
	s := New(Rule{}, 5)
	rng := &contract.Range{StartPage: 0, EndPage: 2, Begin: "Start here"}
	chunks := collect(t, s, contract.Page{ID: 0, Text: text}, rng)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Start here. Keep one. Keep two.", chunks[0].Text)
	assert.Equal(t, 3, chunks[0].Sentences)
}

func TestSegmentEmitErrorStops(t *testing.T) {
	s := New(Rule{}, 1)
	boom := errors.New("disk full")
	calls := 0
	_, _, err := s.Segment(context.Background(), contract.Page{Text: "Alpha. Beta. Gamma."}, nil, func(contract.Chunk) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

type failTok struct{}

func (failTok) Sentences(string) ([]string, error) { return nil, errors.New("broken") }

func TestSegmentTokenizerFailure(t *testing.T) {
	_, _, err := New(failTok{}, 5).Segment(context.Background(), contract.Page{Text: "x"}, nil, nil)
	require.ErrorIs(t, err, contract.ErrSegmentationFailed)
}

func TestGroup(t *testing.T) {
	assert.Nil(t, Group(nil, 5))
	g := Group([]string{"a", "b", "c"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, g)
	assert.Len(t, Group([]string{"a"}, 0), 1)
}
