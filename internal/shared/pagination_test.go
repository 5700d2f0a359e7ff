package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 0, p.TotalPages)
}

func TestParsePageParams(t *testing.T) {
	page, perPage := ParsePageParams("", "")
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)

	page, perPage = ParsePageParams("3", "50")
	require.Equal(t, 3, page)
	require.Equal(t, 50, perPage)

	_, perPage = ParsePageParams("1", "500")
	require.Equal(t, 100, perPage, "per_page is capped")

	page, perPage = ParsePageParams("-1", "junk")
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}
