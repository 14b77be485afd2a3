// Package api provides HTTP handlers for run control and schedules.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/TimerPipe/internal/models"
)

// startRequest is the optional body of POST /lists/{id}/start.
type startRequest struct {
	Index int `json:"index"`
}

// runControlHandler handles POST /lists/{id}/{start|pause|resume|stop|skip}.
func (s *Server) runControlHandler(w http.ResponseWriter, r *http.Request, listID, op string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.runControlHandler: method not allowed", "method", r.Method, "op", op)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	switch op {
	case "start":
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			slog.Warn("Server.runControlHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		status := s.seq.Status()
		if status.State == models.RunStatePaused && status.ListID == listID {
			// Start on a paused run resumes it rather than restarting.
			s.seq.Resume()
			s.eng.OnResumed()
		} else if err := s.startList(listID, req.Index); err != nil {
			slog.Warn("Server.runControlHandler: start failed", "listID", listID, "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
	case "pause":
		s.seq.Pause()
		s.eng.OnPaused()
	case "resume":
		s.seq.Resume()
		s.eng.OnResumed()
	case "stop":
		s.seq.Stop()
		s.eng.OnStopped()
	case "skip":
		s.seq.SkipToNext()
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown run operation"))
		return
	}

	slog.Info("Run control applied", "listID", listID, "op", op)
	writeJSONResponse(w, http.StatusOK, models.Success(s.seq.Status()))
}

// runStatusHandler handles GET /run.
func (s *Server) runStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.seq.Status()))
}

// schedulesHandler routes /schedules requests.
func (s *Server) schedulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.schedulesHandler: routing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/schedules")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		switch r.Method {
		case http.MethodGet:
			s.listSchedulesHandler(w, r)
		case http.MethodPost:
			s.createScheduleHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}
	if len(segments) == 1 && r.Method == http.MethodDelete {
		s.deleteScheduleHandler(w, r, segments[0])
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown schedule endpoint"))
}

func (s *Server) listSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.st.ListSchedules()
	if err != nil {
		slog.Error("Server.listSchedulesHandler: failed to fetch schedules", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch schedules"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(schedules))
}

// createScheduleHandler handles POST /schedules. The cron job is armed before
// the schedule is persisted, so an invalid expression is rejected up front.
func (s *Server) createScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var sched models.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		slog.Warn("Server.createScheduleHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	sched.ID = uuid.NewString()
	if err := sched.Validate(); err != nil {
		slog.Warn("Server.createScheduleHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	list, err := s.st.GetTimerList(sched.ListID)
	if err != nil || list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}
	if err := s.armSchedule(sched.ID, sched.ListID, sched.Cron, sched.StartIndex); err != nil {
		slog.Warn("Server.createScheduleHandler: invalid cron expression", "cron", sched.Cron, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid cron expression"))
		return
	}
	if err := s.st.CreateSchedule(sched); err != nil {
		s.disarmSchedule(sched.ID)
		slog.Error("Server.createScheduleHandler: failed to store schedule", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create schedule"))
		return
	}
	slog.Info("Schedule created", "scheduleID", sched.ID, "listID", sched.ListID, "cron", sched.Cron)
	writeJSONResponse(w, http.StatusCreated, models.Success(sched))
}

func (s *Server) deleteScheduleHandler(w http.ResponseWriter, r *http.Request, scheduleID string) {
	s.disarmSchedule(scheduleID)
	if err := s.st.DeleteSchedule(scheduleID); err != nil {
		slog.Error("Server.deleteScheduleHandler: failed to delete schedule", "scheduleID", scheduleID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete schedule"))
		return
	}
	slog.Info("Schedule deleted", "scheduleID", scheduleID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Schedule deleted successfully", nil))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"run_state": s.seq.Status().State,
	}

	// Store reachability is the health indicator.
	if _, err := s.st.ListTimerLists(); err != nil {
		slog.Warn("Health check: store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach store"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
