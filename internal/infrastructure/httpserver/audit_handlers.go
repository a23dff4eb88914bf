package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ueckoken/kagi/internal/core/domain/audit"
	"github.com/ueckoken/kagi/internal/infrastructure/httpserver/helpers"
)

func (s *Server) listAccessEvents(c echo.Context) error {
	if s.auditSvc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit log disabled")
	}

	limit, err := helpers.QueryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := helpers.QueryInt(c, "offset")
	if err != nil {
		return err
	}
	granted, err := helpers.QueryBool(c, "granted")
	if err != nil {
		return err
	}

	filter := &audit.AccessEventFilter{Granted: granted, Limit: limit, Offset: offset}
	events, total, err := s.auditSvc.GetAccessEvents(c.Request().Context(), filter)
	if err != nil {
		if s.logger != nil {
			s.logger.WithField("trace_id", helpers.GetTraceID(c)).WithError(err).Error("failed to list access events")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list access events")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events, "total": total})
}
