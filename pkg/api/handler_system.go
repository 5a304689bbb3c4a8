package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/version"
)

// HealthResponse is returned by GET /health. Ok is the contract; the
// rest is operator convenience.
type HealthResponse struct {
	Ok          bool   `json:"ok"`
	Version     string `json:"version"`
	Subscribers int    `json:"subscribers"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Chat               int    `json:"chat_messages"`
	Tasks              int    `json:"tasks"`
	Timeline           int    `json:"timeline_events"`
	Presence           int    `json:"presence_users"`
	Frames             int    `json:"frames"`
	FramesRemembered   int    `json:"frames_remembered"`
	Subscribers        int    `json:"subscribers"`
	SubscribersDropped uint64 `json:"subscribers_dropped"`
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Ok:          true,
		Version:     version.Full(),
		Subscribers: s.bus.SubscriberCount(),
	})
}

// stateHandler handles GET /api/state: one consistent snapshot of every
// collection.
func (s *Server) stateHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

// statsHandler handles GET /api/stats.
func (s *Server) statsHandler(c *gin.Context) {
	counts := s.store.Stats()
	resp := StatsResponse{
		Chat:               counts.ChatMessages,
		Tasks:              counts.Tasks,
		Timeline:           counts.TimelineEvents,
		Presence:           counts.PresenceUsers,
		Frames:             counts.Frames,
		Subscribers:        s.bus.SubscriberCount(),
		SubscribersDropped: s.bus.DroppedTotal(),
	}
	if s.ingestor != nil {
		resp.FramesRemembered = s.ingestor.RememberedCount()
	}
	c.JSON(http.StatusOK, resp)
}
