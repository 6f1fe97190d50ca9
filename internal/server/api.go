package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
	"github.com/roach88/rehook/internal/store"
)

// CreateRequest is the body of POST /v1/apps/{app}/instances.
type CreateRequest struct {
	Props  ir.Object `json:"props,omitempty"`
	Settle bool      `json:"settle,omitempty"`
}

// CycleRequest is the body of POST /v1/instances/{id}/cycle.
type CycleRequest struct {
	Events []ir.Event `json:"events"`
	Settle bool       `json:"settle,omitempty"`
}

// CycleResult answers create and cycle requests. Settled holds the
// responses of the follow-up cycles run while settling loaders.
type CycleResult struct {
	Instance string             `json:"instance"`
	Response *engine.Response   `json:"response"`
	Settled  []*engine.Response `json:"settled,omitempty"`
}

// StateResult answers GET /v1/instances/{id}/state.
type StateResult struct {
	Instance store.Instance `json:"instance"`
	State    ir.Snapshot    `json:"state"`
}

// BroadcastRequest is the body of POST /v1/channels/{name}/messages.
type BroadcastRequest struct {
	Payload ir.Value `json:"payload"`
}

// UnmarshalJSON decodes Payload as a sealed value.
func (b *BroadcastRequest) UnmarshalJSON(data []byte) error {
	var aux struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 {
		b.Payload = ir.Null{}
		return nil
	}
	v, err := ir.UnmarshalValue(aux.Payload)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	b.Payload = v
	return nil
}

// BroadcastResult lists the instances that received a message.
type BroadcastResult struct {
	Delivered []string `json:"delivered"`
}

func (s *Server) listApps(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"apps": s.runner.Apps()})
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, resp, err := s.runner.Create(r.Context(), r.PathValue("app"), req.Props)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := CycleResult{Instance: id, Response: resp}
	if req.Settle {
		if result.Settled, err = s.runner.Settle(r.Context(), id, resp); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) cycle(w http.ResponseWriter, r *http.Request) {
	var req CycleRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	resp, err := s.runner.Cycle(r.Context(), id, req.Events)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result := CycleResult{Instance: id, Response: resp}
	if req.Settle {
		if result.Settled, err = s.runner.Settle(r.Context(), id, resp); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	inst, snap, err := s.runner.State(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResult{Instance: inst, State: snap})
}

func (s *Server) deleteInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.closeInstance(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	delivered, err := s.runner.Broadcast(r.Context(), r.PathValue("name"), req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if delivered == nil {
		delivered = []string{}
	}
	writeJSON(w, http.StatusOK, BroadcastResult{Delivered: delivered})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body. An empty body decodes to the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

