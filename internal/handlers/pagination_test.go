package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-backend/internal/apperr"
)

func contextWithQuery(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/items?"+query, nil)
	return c
}

func TestPaginate(t *testing.T) {
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}

	all, err := paginate(contextWithQuery(""), items)
	require.NoError(t, err)
	assert.Len(t, all, 45)

	page, err := paginate(contextWithQuery("page=3"), items)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 41, 42, 43, 44}, page)

	page, err = paginate(contextWithQuery("page=2&limit=10"), items)
	require.NoError(t, err)
	assert.Equal(t, 10, page[0])

	page, err = paginate(contextWithQuery("page=9&limit=10"), items)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPaginateRejectsBadParams(t *testing.T) {
	for _, query := range []string{"page=0", "page=abc", "limit=0", "limit=101"} {
		_, err := paginate(contextWithQuery(query), []int{1})
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), query)
	}
}
