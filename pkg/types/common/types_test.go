package common

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_GeneratesUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id.String())
	require.NoError(t, err)
	assert.NotEqual(t, NewID(), NewID())
}

func TestPagination_Normalize(t *testing.T) {
	p := Pagination{}.Normalize(20, 100)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PageSize)

	p = Pagination{Page: 3, PageSize: 1000}.Normalize(20, 100)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 200, p.Offset())
}

func TestNewPaginatedResult(t *testing.T) {
	res := NewPaginatedResult([]string{"a", "b"}, Pagination{Page: 1, PageSize: 2}, 5)
	assert.Equal(t, []string{"a", "b"}, res.Items)
	assert.Equal(t, int64(5), res.Pagination.Total)
	assert.Equal(t, 3, res.Pagination.TotalPages)

	empty := NewPaginatedResult[string](nil, Pagination{Page: 1, PageSize: 10}, 0)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Pagination.TotalPages)
}

//Personal.AI order the ending
