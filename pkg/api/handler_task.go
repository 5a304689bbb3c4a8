package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/models"
)

// listTasksHandler handles GET /api/tasks.
func (s *Server) listTasksHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListTasks())
}

// createTaskHandler handles POST /api/tasks.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	task, err := s.store.CreateTask(req.Title, req.Assignee)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// setTaskStatusHandler handles PATCH /api/tasks/:id/status.
func (s *Server) setTaskStatusHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeInvalid(c, "task id must be an integer")
		return
	}

	var req models.SetTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	task, err := s.store.SetTaskStatus(id, models.TaskStatus(req.Status))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
