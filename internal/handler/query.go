package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
)

// parsePage reads limit, skip and sort=field:±1. Bad numbers fall back to defaults.
func parsePage(c *gin.Context) model.Page {
	p := model.Page{}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Limit = n
		}
	}
	if raw := c.Query("skip"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Skip = n
		}
	}
	if raw := c.Query("sort"); raw != "" {
		p.SortField, p.SortDesc = model.ParseSort(raw)
	}
	return p.Normalize()
}

// parseRange reads startDate and endDate. A bare date as endDate covers that whole day.
func parseRange(c *gin.Context) (model.TimeRange, error) {
	var r model.TimeRange
	if raw := c.Query("startDate"); raw != "" {
		t, _, err := parseTime(raw)
		if err != nil {
			return r, apperrors.NewBadRequest("invalid startDate: "+raw, err)
		}
		r.From = &t
	}
	if raw := c.Query("endDate"); raw != "" {
		t, dateOnly, err := parseTime(raw)
		if err != nil {
			return r, apperrors.NewBadRequest("invalid endDate: "+raw, err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		r.To = &t
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return r, apperrors.NewBadRequest("endDate is before startDate", nil)
	}
	return r, nil
}

func parseTime(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// values past year 2286 in seconds are taken as milliseconds
		if unix > 1e10 {
			return time.UnixMilli(unix).UTC(), false, nil
		}
		return time.Unix(unix, 0).UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid time format")
}

// boolQuery returns nil when the parameter is absent or not a boolean.
func boolQuery(c *gin.Context, key string) *bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func intQuery(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

func listResponse[T any](items []T, p model.Page) gin.H {
	if items == nil {
		items = []T{}
	}
	return gin.H{
		"success": true,
		"data":    items,
		"count":   len(items),
		"limit":   p.Limit,
		"skip":    p.Skip,
	}
}
