package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftrans/pkg/contract"
)

type fixed struct {
	begin, end string
	err        error
}

func (f fixed) Phrases(context.Context) (string, string, error) { return f.begin, f.end, f.err }

func doc() contract.Document {
	return contract.Document{Pages: []contract.Page{
		{ID: 0, Text: "Title\r\nAbstract We study"},
		{ID: 1, Text: "Introduction text\r\nWe study more"},
		{ID: 2, Text: "Results here\r\nin conclusion we"},
		{ID: 3, Text: "References"},
	}}
}

func TestSelectNoProvider(t *testing.T) {
	sel, err := Select(context.Background(), doc(), nil)
	require.NoError(t, err)
	assert.Equal(t, NoRange, sel.State)
	assert.Nil(t, sel.Active())
}

func TestSelectSentinelAborts(t *testing.T) {
	for _, f := range []fixed{{begin: "q", end: "anything"}, {begin: "Abstract", end: "q"}, {begin: " q ", end: "x"}} {
		// 页面为空：若扫描将报 AnchorNotFound 而非 RangeAborted
		sel, err := Select(context.Background(), contract.Document{}, f)
		require.ErrorIs(t, err, contract.ErrRangeAborted)
		assert.Equal(t, RangeAborted, sel.State)
		assert.Nil(t, sel.Active())
	}
}

func TestSelectResolves(t *testing.T) {
	sel, err := Select(context.Background(), doc(), fixed{begin: "We study", end: "in conclusion"})
	require.NoError(t, err)
	assert.Equal(t, RangeResolved, sel.State)
	// "We study" 出现在第 0 与第 1 页，取最后一页
	assert.Equal(t, contract.Range{StartPage: 1, EndPage: 2, Begin: "We study", End: "in conclusion"}, sel.Range)
	require.NotNil(t, sel.Active())
	assert.Equal(t, contract.PageID(1), sel.Active().StartPage)
}

func TestSelectUnresolved(t *testing.T) {
	sel, err := Select(context.Background(), doc(), fixed{begin: "Abstract", end: "Appendix"})
	require.ErrorIs(t, err, contract.ErrAnchorNotFound)
	assert.Equal(t, RangeAborted, sel.State)
	var ae *contract.AnchorError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "end", ae.Role)
}

func TestSelectProviderError(t *testing.T) {
	boom := errors.New("stdin closed")
	sel, err := Select(context.Background(), doc(), fixed{err: boom})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, RangeAborted, sel.State)
}

func TestResolveInverted(t *testing.T) {
	_, err := Resolve(doc().Pages, "References", "Abstract")
	require.ErrorIs(t, err, contract.ErrRangeInvalid)
	_, err = Resolve(doc().Pages, "", "Abstract")
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestFilter(t *testing.T) {
	d := doc()
	all, err := Filter(d, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	pages, err := Filter(d, &contract.Range{StartPage: 1, EndPage: 2})
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, contract.PageID(1), pages[0].ID)
	assert.Equal(t, contract.PageID(2), pages[1].ID)

	_, err = Filter(d, &contract.Range{StartPage: 2, EndPage: 9})
	require.ErrorIs(t, err, contract.ErrPageMismatch)

	gappy := contract.Document{Pages: []contract.Page{{ID: 0}, {ID: 2}}}
	_, err = Filter(gappy, &contract.Range{StartPage: 0, EndPage: 2})
	require.ErrorIs(t, err, contract.ErrPageMismatch)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "range_resolved", RangeResolved.String())
	assert.Equal(t, "unknown", State(42).String())
}
