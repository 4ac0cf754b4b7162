package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListJournal handles GET /api/v1/journal?limit=
func (c *Controller) ListJournal(ctx echo.Context) error {
	limit := 100
	if raw := ctx.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return c.HandleError(ctx, err, "Parameter limit must be a non-negative integer", http.StatusBadRequest)
		}
		limit = v
	}

	records, err := c.history.List(limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list sessions", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, records)
}

// GetJournalEntry handles GET /api/v1/journal/:session
func (c *Controller) GetJournalEntry(ctx echo.Context) error {
	rec, err := c.history.Get(ctx.Param("session"))
	if err != nil {
		return c.HandleError(ctx, err, "Session record not found", StatusFor(err))
	}
	return ctx.JSON(http.StatusOK, rec)
}
