// Package api provides HTTP handlers for TimerPipe endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/TimerPipe/internal/models"
)

// listsHandler routes every request under /lists by path segment.
func (s *Server) listsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.listsHandler: routing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/lists")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		// /lists
		switch r.Method {
		case http.MethodGet:
			s.listTimerListsHandler(w, r)
		case http.MethodPost:
			s.createTimerListHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	listID := segments[0]

	if len(segments) == 1 {
		// /lists/{id}
		switch r.Method {
		case http.MethodGet:
			s.getTimerListHandler(w, r, listID)
		case http.MethodDelete:
			s.deleteTimerListHandler(w, r, listID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	switch segments[1] {
	case "timers":
		s.timersHandler(w, r, listID, segments[2:])
	case "counters":
		s.countersHandler(w, r, listID, segments[2:])
	case "automations":
		s.automationsHandler(w, r, listID, segments[2:])
	case "start", "pause", "resume", "stop", "skip":
		if len(segments) == 2 {
			s.runControlHandler(w, r, listID, segments[1])
			return
		}
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown list endpoint"))
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown list endpoint"))
	}
}

// createTimerListHandler handles POST /lists.
func (s *Server) createTimerListHandler(w http.ResponseWriter, r *http.Request) {
	var list models.TimerList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		slog.Warn("Server.createTimerListHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	list.ID = uuid.NewString()
	list.CreatedAt = time.Now().UTC()
	if err := list.Validate(); err != nil {
		slog.Warn("Server.createTimerListHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.CreateTimerList(list); err != nil {
		slog.Error("Server.createTimerListHandler: failed to store list", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create list"))
		return
	}
	slog.Info("Timer list created", "listID", list.ID, "name", list.Name)
	writeJSONResponse(w, http.StatusCreated, models.Success(list))
}

// listTimerListsHandler handles GET /lists.
func (s *Server) listTimerListsHandler(w http.ResponseWriter, r *http.Request) {
	lists, err := s.st.ListTimerLists()
	if err != nil {
		slog.Error("Server.listTimerListsHandler: failed to fetch lists", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch lists"))
		return
	}
	slog.Debug("Timer lists fetched", "count", len(lists))
	writeJSONResponse(w, http.StatusOK, models.Success(lists))
}

// getTimerListHandler handles GET /lists/{id}. The result bundles the list
// with its timers and counters.
func (s *Server) getTimerListHandler(w http.ResponseWriter, r *http.Request, listID string) {
	list, err := s.st.GetTimerList(listID)
	if err != nil {
		slog.Error("Server.getTimerListHandler: failed to fetch list", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch list"))
		return
	}
	if list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}
	timers, err := s.st.ListTimers(listID)
	if err != nil {
		slog.Error("Server.getTimerListHandler: failed to fetch timers", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch timers"))
		return
	}
	counters, err := s.st.ListCounters(listID)
	if err != nil {
		slog.Error("Server.getTimerListHandler: failed to fetch counters", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch counters"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"list":     list,
		"timers":   timers,
		"counters": counters,
	}))
}

// deleteTimerListHandler handles DELETE /lists/{id}. Deletion cascades to the
// list's timers, counters, automations, and schedules.
func (s *Server) deleteTimerListHandler(w http.ResponseWriter, r *http.Request, listID string) {
	list, err := s.st.GetTimerList(listID)
	if err != nil {
		slog.Error("Server.deleteTimerListHandler: failed to fetch list", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch list"))
		return
	}
	if list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}

	// Disarm cron jobs pointing at this list before the schedules vanish.
	schedules, err := s.st.ListSchedules()
	if err == nil {
		for _, sched := range schedules {
			if sched.ListID == listID {
				s.disarmSchedule(sched.ID)
			}
		}
	}

	if status := s.seq.Status(); status.ListID == listID && status.State != models.RunStateIdle {
		s.seq.Stop()
		s.eng.OnStopped()
	}

	if err := s.st.DeleteTimerList(listID); err != nil {
		slog.Error("Server.deleteTimerListHandler: failed to delete list", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete list"))
		return
	}
	slog.Info("Timer list deleted", "listID", listID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("List deleted successfully", nil))
}

// timersHandler routes /lists/{id}/timers requests.
func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request, listID string, segments []string) {
	if len(segments) == 0 || segments[0] == "" {
		switch r.Method {
		case http.MethodGet:
			s.listTimersHandler(w, r, listID)
		case http.MethodPost:
			s.createTimerHandler(w, r, listID)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodDelete:
			s.deleteTimerHandler(w, r, listID, segments[0])
		default:
			w.Header().Set("Allow", "DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown timer endpoint"))
}

func (s *Server) listTimersHandler(w http.ResponseWriter, r *http.Request, listID string) {
	timers, err := s.st.ListTimers(listID)
	if err != nil {
		slog.Error("Server.listTimersHandler: failed to fetch timers", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch timers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(timers))
}

func (s *Server) createTimerHandler(w http.ResponseWriter, r *http.Request, listID string) {
	var timer models.TimerDefinition
	if err := json.NewDecoder(r.Body).Decode(&timer); err != nil {
		slog.Warn("Server.createTimerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	timer.ID = uuid.NewString()
	timer.ListID = listID
	if err := timer.Validate(); err != nil {
		slog.Warn("Server.createTimerHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if list, err := s.st.GetTimerList(listID); err != nil || list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}
	if err := s.st.CreateTimer(timer); err != nil {
		slog.Error("Server.createTimerHandler: failed to store timer", "error", err)
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	}
	slog.Info("Timer created", "timerID", timer.ID, "listID", listID, "name", timer.Name)
	writeJSONResponse(w, http.StatusCreated, models.Success(timer))
}

func (s *Server) deleteTimerHandler(w http.ResponseWriter, r *http.Request, listID, timerID string) {
	if err := s.st.DeleteTimer(timerID); err != nil {
		slog.Error("Server.deleteTimerHandler: failed to delete timer", "timerID", timerID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete timer"))
		return
	}
	slog.Info("Timer deleted", "timerID", timerID, "listID", listID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Timer deleted successfully", nil))
}

// countersHandler routes /lists/{id}/counters requests, including the value
// operations increment, decrement, and reset.
func (s *Server) countersHandler(w http.ResponseWriter, r *http.Request, listID string, segments []string) {
	if len(segments) == 0 || segments[0] == "" {
		switch r.Method {
		case http.MethodGet:
			s.listCountersHandler(w, r, listID)
		case http.MethodPost:
			s.createCounterHandler(w, r, listID)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	counterID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodDelete:
			s.deleteCounterHandler(w, r, listID, counterID)
		default:
			w.Header().Set("Allow", "DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.counterOpHandler(w, r, listID, counterID, segments[1])
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown counter endpoint"))
}

func (s *Server) listCountersHandler(w http.ResponseWriter, r *http.Request, listID string) {
	counters, err := s.st.ListCounters(listID)
	if err != nil {
		slog.Error("Server.listCountersHandler: failed to fetch counters", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch counters"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(counters))
}

func (s *Server) createCounterHandler(w http.ResponseWriter, r *http.Request, listID string) {
	var counter models.Counter
	if err := json.NewDecoder(r.Body).Decode(&counter); err != nil {
		slog.Warn("Server.createCounterHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	counter.ID = uuid.NewString()
	counter.ListID = listID
	counter.Value = counter.InitialValue
	if err := counter.Validate(); err != nil {
		slog.Warn("Server.createCounterHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if list, err := s.st.GetTimerList(listID); err != nil || list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}
	if err := s.st.CreateCounter(counter); err != nil {
		slog.Error("Server.createCounterHandler: failed to store counter", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create counter"))
		return
	}
	slog.Info("Counter created", "counterID", counter.ID, "listID", listID, "name", counter.Name)
	writeJSONResponse(w, http.StatusCreated, models.Success(counter))
}

func (s *Server) deleteCounterHandler(w http.ResponseWriter, r *http.Request, listID, counterID string) {
	if err := s.st.DeleteCounter(counterID); err != nil {
		slog.Error("Server.deleteCounterHandler: failed to delete counter", "counterID", counterID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete counter"))
		return
	}
	slog.Info("Counter deleted", "counterID", counterID, "listID", listID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Counter deleted successfully", nil))
}

// counterOpHandler applies a value operation through the engine so counter
// triggers are evaluated on the same timeline as timer events. The counter
// must belong to the list in the path.
func (s *Server) counterOpHandler(w http.ResponseWriter, r *http.Request, listID, counterID, op string) {
	existing, err := s.st.GetCounter(counterID)
	if err != nil {
		slog.Error("Server.counterOpHandler: failed to fetch counter", "counterID", counterID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Counter operation failed"))
		return
	}
	if existing == nil || existing.ListID != listID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Counter not found"))
		return
	}

	var counter *models.Counter
	switch op {
	case "increment":
		counter, err = s.eng.IncrementCounter(counterID)
	case "decrement":
		counter, err = s.eng.DecrementCounter(counterID)
	case "reset":
		counter, err = s.eng.ResetCounter(counterID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown counter operation"))
		return
	}
	if err != nil {
		if err == models.ErrNotFound {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Counter not found"))
			return
		}
		slog.Error("Server.counterOpHandler: operation failed", "counterID", counterID, "op", op, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Counter operation failed"))
		return
	}
	slog.Info("Counter operation applied", "counterID", counterID, "op", op, "value", counter.Value)
	writeJSONResponse(w, http.StatusOK, models.Success(counter))
}

// automationsHandler routes /lists/{id}/automations requests.
func (s *Server) automationsHandler(w http.ResponseWriter, r *http.Request, listID string, segments []string) {
	if len(segments) == 0 || segments[0] == "" {
		switch r.Method {
		case http.MethodGet:
			s.listAutomationsHandler(w, r, listID)
		case http.MethodPost:
			s.createAutomationHandler(w, r, listID)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodPut:
			s.updateAutomationHandler(w, r, listID, segments[0])
		case http.MethodDelete:
			s.deleteAutomationHandler(w, r, listID, segments[0])
		default:
			w.Header().Set("Allow", "PUT, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}
	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown automation endpoint"))
}

func (s *Server) listAutomationsHandler(w http.ResponseWriter, r *http.Request, listID string) {
	automations, err := s.st.ListAutomations(listID)
	if err != nil {
		slog.Error("Server.listAutomationsHandler: failed to fetch automations", "listID", listID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch automations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(automations))
}

func (s *Server) createAutomationHandler(w http.ResponseWriter, r *http.Request, listID string) {
	var automation models.Automation
	if err := json.NewDecoder(r.Body).Decode(&automation); err != nil {
		slog.Warn("Server.createAutomationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	automation.ID = uuid.NewString()
	automation.ListID = listID
	if err := automation.Validate(); err != nil {
		slog.Warn("Server.createAutomationHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if list, err := s.st.GetTimerList(listID); err != nil || list == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("List not found"))
		return
	}
	if err := s.st.CreateAutomation(automation); err != nil {
		slog.Error("Server.createAutomationHandler: failed to store automation", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create automation"))
		return
	}
	s.reloadEngineIfActive(listID)
	slog.Info("Automation created", "automationID", automation.ID, "listID", listID, "name", automation.Name)
	writeJSONResponse(w, http.StatusCreated, models.Success(automation))
}

func (s *Server) updateAutomationHandler(w http.ResponseWriter, r *http.Request, listID, automationID string) {
	var automation models.Automation
	if err := json.NewDecoder(r.Body).Decode(&automation); err != nil {
		slog.Warn("Server.updateAutomationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	automation.ID = automationID
	automation.ListID = listID
	if err := automation.Validate(); err != nil {
		slog.Warn("Server.updateAutomationHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpdateAutomation(automation); err != nil {
		slog.Error("Server.updateAutomationHandler: failed to update automation", "automationID", automationID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update automation"))
		return
	}
	s.reloadEngineIfActive(listID)
	slog.Info("Automation updated", "automationID", automationID, "listID", listID)
	writeJSONResponse(w, http.StatusOK, models.Success(automation))
}

func (s *Server) deleteAutomationHandler(w http.ResponseWriter, r *http.Request, listID, automationID string) {
	if err := s.st.DeleteAutomation(automationID); err != nil {
		slog.Error("Server.deleteAutomationHandler: failed to delete automation", "automationID", automationID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete automation"))
		return
	}
	s.reloadEngineIfActive(listID)
	slog.Info("Automation deleted", "automationID", automationID, "listID", listID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Automation deleted successfully", nil))
}

// reloadEngineIfActive refreshes the engine's rule set when the edited list
// is the one currently bound.
func (s *Server) reloadEngineIfActive(listID string) {
	if s.seq.Status().ListID != listID {
		return
	}
	if err := s.eng.Reload(); err != nil {
		slog.Error("Server.reloadEngineIfActive: reload failed", "listID", listID, "error", err)
	}
}
