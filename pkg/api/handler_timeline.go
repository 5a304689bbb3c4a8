package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/models"
)

// listTimelineHandler handles GET /api/timeline.
func (s *Server) listTimelineHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListTimeline())
}

// createTimelineHandler handles POST /api/timeline.
func (s *Server) createTimelineHandler(c *gin.Context) {
	var req models.CreateTimelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	evt, err := s.store.CreateTimeline(req.Kind, req.Text)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, evt)
}
