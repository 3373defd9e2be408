package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"agency-backend/internal/apperr"
)

const defaultPageLimit = 20

// paginate applies ?page=&limit= to a listing. Without either parameter the
// whole list is returned.
func paginate[T any](c *gin.Context, items []T) ([]T, error) {
	pageStr, limitStr := c.Query("page"), c.Query("limit")
	if pageStr == "" && limitStr == "" {
		return items, nil
	}

	page, limit, err := parsePaginationParams(pageStr, limitStr)
	if err != nil {
		return nil, err
	}
	start := int((page - 1) * limit)
	return lo.Slice(items, start, start+int(limit)), nil
}

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := int64(1)
	limit := int64(defaultPageLimit)

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, apperr.Validation("validation failed", "page must be a positive integer")
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 || l > 100 {
			return 0, 0, apperr.Validation("validation failed", "limit must be between 1 and 100")
		}
		limit = l
	}

	return page, limit, nil
}
