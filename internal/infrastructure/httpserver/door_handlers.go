package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type doorResponse struct {
	State          string     `json:"state"`
	LastAction     string     `json:"last_action,omitempty"`
	LastTransition *time.Time `json:"last_transition,omitempty"`
	Transitions    uint64     `json:"transitions"`
}

func (s *Server) getDoor(c echo.Context) error {
	if s.door == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "door controller not ready")
	}
	snap := s.door.Snapshot()
	resp := doorResponse{
		State:       snap.StateName,
		LastAction:  snap.LastAction,
		Transitions: snap.Transitions,
	}
	if !snap.LastTransition.IsZero() {
		t := snap.LastTransition.UTC()
		resp.LastTransition = &t
	}
	return c.JSON(http.StatusOK, resp)
}
