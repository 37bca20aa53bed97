package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "One two. Three four! Five?", []string{"One two.", "Three four!", "Five?"}},
		{"decimal", "Pi is 3.14 today. Yes.", []string{"Pi is 3.14 today.", "Yes."}},
		{"lowercase continuation", "See e.g. this. Next.", []string{"See e.g. this.", "Next."}},
		{"initial", "Written by J. Smith. Done.", []string{"Written by J. Smith.", "Done."}},
		{"quote", `He said "stop." Then left.`, []string{`He said "stop."`, "Then left."}},
		{"no terminator", "trailing words", []string{"trailing words"}},
		{"blank", "   ", nil},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rule{}.Sentences(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPunktSentences(t *testing.T) {
	p, err := NewPunkt()
	require.NoError(t, err)
	got, err := p.Sentences("The model is trained on a corpus. It is then evaluated on held-out data.")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "It is then evaluated on held-out data.", got[1])
}
