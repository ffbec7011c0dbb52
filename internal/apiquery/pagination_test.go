package apiquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listquery/internal/queryparse"
)

func TestPaginationChangePage(t *testing.T) {
	o, err := FromQueryString("filters=status~active&limit=20", nil)
	require.NoError(t, err)

	p := NewPagination(o, 0)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 1, p.CurrentPage)

	url, err := p.ChangePage(3)
	require.NoError(t, err)
	assert.Equal(t, "?filters=status~EQUAL~active&limit=20&offset=40", url)
	assert.Equal(t, 3, p.CurrentPage)

	_, err = p.ChangePage(0)
	require.Error(t, err)
	assert.Equal(t, "Page number cannot be 0", err.Error())
	assert.Equal(t, 3, p.CurrentPage)
}

func TestPaginationDefaults(t *testing.T) {
	p := NewPagination(nil, 5)
	url, err := p.URL()
	require.NoError(t, err)
	assert.Equal(t, "?limit=10", url)

	url, err = p.ChangePage(2)
	require.NoError(t, err)
	assert.Equal(t, "?limit=10&offset=5", url)
}

func TestPaginationLoadAndMerge(t *testing.T) {
	p := NewPagination(New(nil), 10)

	require.NoError(t, p.LoadAndMerge(Update{Page: intPtr(4)}))
	assert.Equal(t, 4, p.CurrentPage)
	assert.Equal(t, 30, p.Options.Spec().Offset)

	require.NoError(t, p.LoadAndMerge(Update{
		Fragment:    queryparse.Fragment{Limit: intPtr(10)},
		ClearParams: true,
	}))
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, 0, p.Options.Spec().Offset)
}
