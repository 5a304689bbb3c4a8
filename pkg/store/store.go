// Package store owns all collaboration state in memory: chat, tasks,
// timeline, presence, and observer frames. Every mutation runs under a
// single mutex, assigns ids and timestamps, and hands the resulting
// event batch to the bus inside the same critical section. Attaching a
// subscriber captures the snapshot and registers the subscriber in that
// same critical section, so the snapshot and the live stream partition
// the event sequence with no gap and no overlap.
//
// Nothing is persisted; the store's lifetime is the process lifetime.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/frostwall/collabd/pkg/clock"
	"github.com/frostwall/collabd/pkg/events"
	"github.com/frostwall/collabd/pkg/models"
)

// Store is the single shared mutable resource of the process.
type Store struct {
	mu    sync.Mutex
	clock clock.Clock
	bus   *events.Bus

	// lastTS enforces timestamp monotonicity across wall-clock
	// regressions: each read returns max(now, lastTS+1).
	lastTS uint64

	chatIDs     idAllocator
	taskIDs     idAllocator
	timelineIDs idAllocator

	chat      []models.ChatMessage
	tasks     map[uint64]models.TaskItem
	taskOrder []uint64
	timeline  []models.TimelineEvent
	presence  map[string]models.Presence
	frames    map[string]models.ObserverFrame
	// frameOrder holds paths in observed order (observed_at_ms ascending,
	// which is also insertion order thanks to the monotonic clock).
	frameOrder []string
}

// New creates an empty store publishing to the given bus.
func New(clk clock.Clock, bus *events.Bus) *Store {
	return &Store{
		clock:       clk,
		bus:         bus,
		chatIDs:     newIDAllocator(),
		taskIDs:     newIDAllocator(),
		timelineIDs: newIDAllocator(),
		tasks:       make(map[uint64]models.TaskItem),
		presence:    make(map[string]models.Presence),
		frames:      make(map[string]models.ObserverFrame),
	}
}

// nowLocked reads the clock under the store lock and clamps it forward
// so timestamps never decrease even if the wall clock does.
func (s *Store) nowLocked() uint64 {
	ts := s.clock.NowMS()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

// requireNonEmpty validates that a field is non-empty after trimming.
func requireNonEmpty(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", NewValidationError(field, "must not be empty")
	}
	return trimmed, nil
}

// CreateChat appends a chat message and publishes chat.created.
func (s *Store) CreateChat(user, text string) (models.ChatMessage, error) {
	user, err := requireNonEmpty("user", user)
	if err != nil {
		return models.ChatMessage{}, err
	}
	text, err = requireNonEmpty("text", text)
	if err != nil {
		return models.ChatMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.ChatMessage{
		ID:          s.chatIDs.alloc(),
		User:        user,
		Text:        text,
		CreatedAtMS: s.nowLocked(),
	}
	s.chat = append(s.chat, msg)
	s.bus.Publish([]events.Event{{Type: events.TypeChatCreated, Data: msg}})
	return msg, nil
}

// ListChat returns chat messages in creation (= id) order.
func (s *Store) ListChat() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.chat...)
}

// CreateTask creates a task in status todo and publishes task.created.
// assignee may be nil for an unassigned task; if present it must be
// non-empty after trimming.
func (s *Store) CreateTask(title string, assignee *string) (models.TaskItem, error) {
	title, err := requireNonEmpty("title", title)
	if err != nil {
		return models.TaskItem{}, err
	}
	var assigned string
	if assignee != nil {
		assigned, err = requireNonEmpty("assignee", *assignee)
		if err != nil {
			return models.TaskItem{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowLocked()
	task := models.TaskItem{
		ID:          s.taskIDs.alloc(),
		Title:       title,
		Assignee:    assigned,
		Status:      models.TaskStatusTodo,
		CreatedAtMS: now,
		UpdatedAtMS: now,
	}
	s.tasks[task.ID] = task
	s.taskOrder = append(s.taskOrder, task.ID)
	s.bus.Publish([]events.Event{{Type: events.TypeTaskCreated, Data: task}})
	return task, nil
}

// SetTaskStatus transitions a task to a new status and publishes
// task.updated. Any status may move to any status; every transition
// bumps updated_at_ms. Returns ErrNotFound for an unknown id.
func (s *Store) SetTaskStatus(id uint64, status models.TaskStatus) (models.TaskItem, error) {
	if !status.Valid() {
		return models.TaskItem{}, NewValidationError("status",
			"must be one of: todo, in_progress, done")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.TaskItem{}, ErrNotFound
	}
	task.Status = status
	task.UpdatedAtMS = s.nowLocked()
	s.tasks[id] = task
	s.bus.Publish([]events.Event{{Type: events.TypeTaskUpdated, Data: task}})
	return task, nil
}

// ListTasks returns tasks in creation order.
func (s *Store) ListTasks() []models.TaskItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listTasksLocked()
}

func (s *Store) listTasksLocked() []models.TaskItem {
	out := make([]models.TaskItem, 0, len(s.taskOrder))
	for _, id := range s.taskOrder {
		out = append(out, s.tasks[id])
	}
	return out
}

// CreateTimeline appends a timeline entry and publishes
// timeline.created. Kind must be non-empty; text may be empty.
func (s *Store) CreateTimeline(kind, text string) (models.TimelineEvent, error) {
	kind, err := requireNonEmpty("kind", kind)
	if err != nil {
		return models.TimelineEvent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evt := s.appendTimelineLocked(kind, text, s.nowLocked())
	s.bus.Publish([]events.Event{{Type: events.TypeTimelineCreated, Data: evt}})
	return evt, nil
}

// appendTimelineLocked creates a timeline entry with a caller-chosen
// timestamp. IngestFrame uses it to give the correlated entry the exact
// observed_at_ms of its frame.
func (s *Store) appendTimelineLocked(kind, text string, ts uint64) models.TimelineEvent {
	evt := models.TimelineEvent{
		ID:          s.timelineIDs.alloc(),
		Kind:        kind,
		Text:        text,
		CreatedAtMS: ts,
	}
	s.timeline = append(s.timeline, evt)
	return evt
}

// ListTimeline returns timeline entries in creation order.
func (s *Store) ListTimeline() []models.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TimelineEvent(nil), s.timeline...)
}

// SetPresence creates or replaces a user's presence and publishes
// presence.updated.
func (s *Store) SetPresence(user string, status models.PresenceStatus) (models.Presence, error) {
	user, err := requireNonEmpty("user", user)
	if err != nil {
		return models.Presence{}, err
	}
	if !status.Valid() {
		return models.Presence{}, NewValidationError("status",
			"must be one of: online, away, busy, offline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.Presence{
		User:        user,
		Status:      status,
		UpdatedAtMS: s.nowLocked(),
	}
	s.presence[user] = p
	s.bus.Publish([]events.Event{{Type: events.TypePresenceUpdated, Data: p}})
	return p, nil
}

// ListPresence returns presence entries sorted by user for a stable
// response order (the underlying map has none).
func (s *Store) ListPresence() []models.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPresenceLocked()
}

func (s *Store) listPresenceLocked() []models.Presence {
	out := make([]models.Presence, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// IngestFrame records a newly observed frame file and publishes
// observer.frame followed by a correlated timeline.created (kind
// "observer") as one atomic batch. A path that is already remembered is
// a noop: the returned bool is false and nothing is published.
func (s *Store) IngestFrame(path, filename string, sizeBytes int64, modifiedAtMS uint64) (models.ObserverFrame, bool, error) {
	path, err := requireNonEmpty("path", path)
	if err != nil {
		return models.ObserverFrame{}, false, err
	}
	filename, err = requireNonEmpty("filename", filename)
	if err != nil {
		return models.ObserverFrame{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.frames[path]; ok {
		return existing, false, nil
	}

	observedAt := s.nowLocked()
	frame := models.ObserverFrame{
		Path:         path,
		Filename:     filename,
		SizeBytes:    sizeBytes,
		ModifiedAtMS: modifiedAtMS,
		ObservedAtMS: observedAt,
	}
	s.frames[path] = frame
	s.frameOrder = append(s.frameOrder, path)

	// The correlated timeline entry shares the frame's observed_at_ms and
	// rides in the same batch, frame first, so no other publish can land
	// between the two.
	entry := s.appendTimelineLocked("observer", "observer frame "+filename, observedAt)
	s.bus.Publish([]events.Event{
		{Type: events.TypeObserverFrame, Data: frame},
		{Type: events.TypeTimelineCreated, Data: entry},
	})
	return frame, true, nil
}

// ListFrames returns frames in observed order (observed_at_ms ascending).
func (s *Store) ListFrames() []models.ObserverFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFramesLocked()
}

func (s *Store) listFramesLocked() []models.ObserverFrame {
	out := make([]models.ObserverFrame, 0, len(s.frameOrder))
	for _, path := range s.frameOrder {
		out = append(out, s.frames[path])
	}
	return out
}

// Snapshot returns an immutable copy of all collections.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() models.Snapshot {
	return models.Snapshot{
		Chat:     append([]models.ChatMessage{}, s.chat...),
		Tasks:    s.listTasksLocked(),
		Timeline: append([]models.TimelineEvent{}, s.timeline...),
		Presence: s.listPresenceLocked(),
		Frames:   s.listFramesLocked(),
	}
}

// Attach captures a snapshot and registers a new bus subscriber inside
// one critical section. The snapshot reflects every publish that
// preceded the attach; the subscriber's stream carries every publish
// that follows. No event is missed or duplicated across the boundary.
func (s *Store) Attach() (models.Snapshot, *events.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.bus.Register()
}

// Stats summarizes store contents for the stats endpoint.
type Stats struct {
	ChatMessages   int `json:"chat_messages"`
	Tasks          int `json:"tasks"`
	TimelineEvents int `json:"timeline_events"`
	PresenceUsers  int `json:"presence_users"`
	Frames         int `json:"frames"`
}

// Stats returns entity counts under the store lock.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ChatMessages:   len(s.chat),
		Tasks:          len(s.tasks),
		TimelineEvents: len(s.timeline),
		PresenceUsers:  len(s.presence),
		Frames:         len(s.frames),
	}
}
