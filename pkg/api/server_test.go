package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostwall/collabd/pkg/clock"
	"github.com/frostwall/collabd/pkg/events"
	"github.com/frostwall/collabd/pkg/models"
	"github.com/frostwall/collabd/pkg/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, *store.Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(1_000)
	bus := events.NewBus()
	st := store.New(clk, bus)
	return NewServer(st, bus), st, clk
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	decodeInto(t, rec, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	decodeInto(t, rec, &resp)
	assert.True(t, resp.Ok)
	assert.NotEmpty(t, resp.Version)
}

func TestCreateChat(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/chat",
		models.CreateChatRequest{User: "a", Text: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var msg models.ChatMessage
	decodeInto(t, rec, &msg)
	assert.Equal(t, uint64(1), msg.ID)
	assert.Equal(t, "a", msg.User)
	assert.Equal(t, "hi", msg.Text)
	assert.NotZero(t, msg.CreatedAtMS)
}

func TestCreateChat_EmptyUserIsInvalid(t *testing.T) {
	s, st, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/chat",
		models.CreateChatRequest{User: "", Text: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalid, decodeError(t, rec).Error)

	// The failed request must not have created anything.
	assert.Empty(t, st.ListChat())
}

func TestCreateChat_MalformedJSON(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalid, decodeError(t, rec).Error)
}

func TestListChat_Ordered(t *testing.T) {
	s, st, _ := newTestServer(t)
	for _, text := range []string{"one", "two", "three"} {
		_, err := st.CreateChat("u", text)
		require.NoError(t, err)
	}

	rec := doJSON(t, s, http.MethodGet, "/api/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []models.ChatMessage
	decodeInto(t, rec, &list)
	require.Len(t, list, 3)
	assert.Equal(t, "one", list[0].Text)
	assert.Equal(t, "three", list[2].Text)
}

func TestTaskLifecycle(t *testing.T) {
	s, _, clk := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/tasks",
		models.CreateTaskRequest{Title: "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	var task models.TaskItem
	decodeInto(t, rec, &task)
	assert.Equal(t, uint64(1), task.ID)
	assert.Equal(t, models.TaskStatusTodo, task.Status)

	clk.Advance(10)
	rec = doJSON(t, s, http.MethodPatch, "/api/tasks/1/status",
		models.SetTaskStatusRequest{Status: "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.TaskItem
	decodeInto(t, rec, &updated)
	assert.Equal(t, models.TaskStatusInProgress, updated.Status)
	assert.Greater(t, updated.UpdatedAtMS, updated.CreatedAtMS)

	// Unknown id: 404 NotFound.
	rec = doJSON(t, s, http.MethodPatch, "/api/tasks/2/status",
		models.SetTaskStatusRequest{Status: "done"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
}

func TestSetTaskStatus_BadInput(t *testing.T) {
	s, st, _ := newTestServer(t)
	_, err := st.CreateTask("x", nil)
	require.NoError(t, err)

	// Non-integer id.
	rec := doJSON(t, s, http.MethodPatch, "/api/tasks/abc/status",
		models.SetTaskStatusRequest{Status: "done"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalid, decodeError(t, rec).Error)

	// Unknown status value.
	rec = doJSON(t, s, http.MethodPatch, "/api/tasks/1/status",
		models.SetTaskStatusRequest{Status: "blocked"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalid, decodeError(t, rec).Error)
}

func TestCreateTask_WithAssignee(t *testing.T) {
	s, _, _ := newTestServer(t)

	bob := "bob"
	rec := doJSON(t, s, http.MethodPost, "/api/tasks",
		models.CreateTaskRequest{Title: "x", Assignee: &bob})
	require.Equal(t, http.StatusOK, rec.Code)
	var task models.TaskItem
	decodeInto(t, rec, &task)
	assert.Equal(t, "bob", task.Assignee)

	empty := ""
	rec = doJSON(t, s, http.MethodPost, "/api/tasks",
		models.CreateTaskRequest{Title: "y", Assignee: &empty})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimelineEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/timeline",
		models.CreateTimelineRequest{Kind: "deploy", Text: "v2 shipped"})
	require.Equal(t, http.StatusOK, rec.Code)
	var evt models.TimelineEvent
	decodeInto(t, rec, &evt)
	assert.Equal(t, uint64(1), evt.ID)

	rec = doJSON(t, s, http.MethodPost, "/api/timeline",
		models.CreateTimelineRequest{Kind: "", Text: "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.TimelineEvent
	decodeInto(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "deploy", list[0].Kind)
}

func TestPresenceEndpoints(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/presence",
		models.SetPresenceRequest{User: "alice", Status: "online"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/presence",
		models.SetPresenceRequest{User: "alice", Status: "busy"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/presence", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Presence
	decodeInto(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, models.PresenceBusy, list[0].Status)

	rec = doJSON(t, s, http.MethodPost, "/api/presence",
		models.SetPresenceRequest{User: "alice", Status: "invisible"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObserverFramesEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)

	_, _, err := st.IngestFrame("/frames/a.png", "a.png", 10, 100)
	require.NoError(t, err)
	_, _, err = st.IngestFrame("/frames/b.png", "b.png", 20, 200)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/observer/frames", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []models.ObserverFrame
	decodeInto(t, rec, &frames)
	require.Len(t, frames, 2)
	assert.Equal(t, "a.png", frames[0].Filename)
	assert.Equal(t, "b.png", frames[1].Filename)
}

func TestStateEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)

	_, err := st.CreateChat("u", "hi")
	require.NoError(t, err)
	_, err = st.CreateTask("t", nil)
	require.NoError(t, err)
	_, err = st.SetPresence("u", models.PresenceOnline)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.Snapshot
	decodeInto(t, rec, &snap)
	assert.Len(t, snap.Chat, 1)
	assert.Len(t, snap.Tasks, 1)
	assert.Len(t, snap.Presence, 1)
	assert.Empty(t, snap.Timeline)
	assert.Empty(t, snap.Frames)
}

func TestStatsEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)

	_, err := st.CreateChat("u", "hi")
	require.NoError(t, err)
	_, _, err = st.IngestFrame("/frames/a.png", "a.png", 1, 1)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	decodeInto(t, rec, &stats)
	assert.Equal(t, 1, stats.Chat)
	assert.Equal(t, 1, stats.Frames)
	assert.Equal(t, 1, stats.Timeline)
	assert.Equal(t, 0, stats.Subscribers)
}
