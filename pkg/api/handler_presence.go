package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/models"
)

// listPresenceHandler handles GET /api/presence.
func (s *Server) listPresenceHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListPresence())
}

// setPresenceHandler handles POST /api/presence.
func (s *Server) setPresenceHandler(c *gin.Context) {
	var req models.SetPresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	p, err := s.store.SetPresence(req.User, models.PresenceStatus(req.Status))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
