package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/models"
)

// listChatHandler handles GET /api/chat.
func (s *Server) listChatHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListChat())
}

// createChatHandler handles POST /api/chat.
func (s *Server) createChatHandler(c *gin.Context) {
	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	msg, err := s.store.CreateChat(req.User, req.Text)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
