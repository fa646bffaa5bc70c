package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/lock"
)

// lockListResponse is the body of GET /locks.
type lockListResponse struct {
	Locks []lock.Snapshot `json:"locks"`
	Count int             `json:"count"`
}

// verbResponse is the body of a successful POST /locks/{id}/{verb}.
type verbResponse struct {
	Verb string        `json:"verb"`
	Lock lock.Snapshot `json:"lock"`
}

func snapshots(devices []*lock.Device) []lock.Snapshot {
	out := make([]lock.Snapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot())
	}
	return out
}

// handleListLocks returns the last known state of every lock.
func (s *Server) handleListLocks(w http.ResponseWriter, _ *http.Request) {
	locks := snapshots(s.ctrl.Devices())
	writeJSON(w, http.StatusOK, lockListResponse{Locks: locks, Count: len(locks)})
}

// handleGetLock returns one lock.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	d, err := s.ctrl.Device(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "lock not found")
		return
	}
	writeJSON(w, http.StatusOK, d.Snapshot())
}

// handleLockVerb runs open, close, calibrate or sync on a lock and returns
// its state afterwards.
func (s *Server) handleLockVerb(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	verb, err := coordinator.ParseVerb(chi.URLParam(r, "verb"))
	if err != nil {
		s.writeFailure(w, r, "lock command", err)
		return
	}

	if err := s.ctrl.Execute(r.Context(), id, verb); err != nil {
		s.writeFailure(w, r, string(verb), err)
		return
	}

	d, err := s.ctrl.Device(id)
	if err != nil {
		s.writeFailure(w, r, string(verb), err)
		return
	}
	writeJSON(w, http.StatusOK, verbResponse{Verb: string(verb), Lock: d.Snapshot()})
}

// handleRefresh queues a refresh cycle and answers 202. With ?wait=true it
// runs (or joins) a cycle and returns the refreshed locks.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "true" {
		s.ctrl.RequestRefresh()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	devices, err := s.ctrl.Refresh(r.Context())
	if err != nil {
		s.writeFailure(w, r, "refresh", err)
		return
	}
	locks := snapshots(devices)
	writeJSON(w, http.StatusOK, lockListResponse{Locks: locks, Count: len(locks)})
}

// handleGateway returns the gateway's health.
func (s *Server) handleGateway(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Health())
}

// handleLastCycle returns the most recent cycle report.
func (s *Server) handleLastCycle(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.ctrl.LastCycle()
	if !ok {
		writeNotFound(w, "no refresh cycle has completed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
