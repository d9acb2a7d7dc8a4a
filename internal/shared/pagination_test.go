package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePage(t *testing.T) {
	page, perPage := NormalizePage(0, 0)
	require.Equal(t, 1, page)
	require.Equal(t, DefaultPerPage, perPage)

	page, perPage = NormalizePage(-3, MaxPerPage+1)
	require.Equal(t, 1, page)
	require.Equal(t, DefaultPerPage, perPage)

	page, perPage = NormalizePage(4, MaxPerPage)
	require.Equal(t, 4, page)
	require.Equal(t, MaxPerPage, perPage)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 10, p.PerPage)
	require.Equal(t, 35, p.Total)
	require.Equal(t, 4, p.TotalPages)

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPerPage, p.PerPage)
	require.Equal(t, 0, p.TotalPages)
}
