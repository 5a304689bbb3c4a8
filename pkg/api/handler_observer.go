package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listFramesHandler handles GET /api/observer/frames. Frames are
// returned in observed order, oldest first.
func (s *Server) listFramesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListFrames())
}
