package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/datalake-platform/datalake/catalog"
	"github.com/datalake-platform/datalake/common"
)

// handleQueueStats reports the job queue depth and consumer count.
func (s *Server) handleQueueStats(c echo.Context) error {
	stats, err := s.bus.Stats()
	if err != nil {
		common.Logger.WithField("error", err.Error()).Error("inspecting queue")
		return errorResponse(c, http.StatusServiceUnavailable, "queue unavailable")
	}
	return c.JSON(http.StatusOK, stats)
}

// handleListTables lists catalog tables, optionally scoped to a project via
// the projectId query parameter.
func (s *Server) handleListTables(c echo.Context) error {
	tables, err := s.tables.ListTables(c.Request().Context(), c.QueryParam("projectId"))
	if err != nil {
		common.Logger.WithField("error", err.Error()).Error("listing tables")
		return errorResponse(c, http.StatusServiceUnavailable, "catalog unavailable")
	}
	if tables == nil {
		// never emit null for an empty catalog
		tables = []catalog.TableInfo{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tables": tables})
}
