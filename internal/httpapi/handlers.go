package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/workflow"
)

type createSessionRequest struct {
	User string `json:"user"`
}

type tapRequest struct {
	Role string  `json:"role"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type terminalRequest struct {
	Index int `json:"index"`
}

type traceTypeRequest struct {
	Type   string `json:"type,omitempty"`
	Config string `json:"config,omitempty"`
}

// pointView is the JSON shape of a committed trace point.
type pointView struct {
	Role     string  `json:"role"`
	AssetID  string  `json:"asset_id"`
	Layer    string  `json:"layer"`
	Kind     string  `json:"kind"`
	Terminal string  `json:"terminal,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
	Seq      int64   `json:"seq"`
}

// pendingView is the JSON shape of a pending terminal selection.
type pendingView struct {
	Role      string   `json:"role"`
	AssetID   string   `json:"asset_id"`
	Terminals []string `json:"terminals"`
}

// sessionView is the state snapshot returned by GET and mutating handlers.
type sessionView struct {
	SessionID    string       `json:"session_id"`
	State        string       `json:"state"`
	Starts       []pointView  `json:"starts"`
	Barriers     []pointView  `json:"barriers"`
	Pending      *pendingView `json:"pending,omitempty"`
	TraceType    string       `json:"trace_type,omitempty"`
	ResultLayers []string     `json:"result_layers,omitempty"`
	RunError     string       `json:"run_error,omitempty"`
}

func viewPoint(p network.TracePoint) pointView {
	v := pointView{
		Role:     string(p.Role),
		AssetID:  p.Element.AssetID,
		Layer:    p.Element.Layer,
		Kind:     string(p.Element.Kind),
		Fraction: p.Element.Fraction,
		Seq:      p.Seq,
	}
	if p.Element.Terminal != nil {
		v.Terminal = p.Element.Terminal.ID
	}
	return v
}

func viewSession(wf *workflow.Workflow) sessionView {
	view := sessionView{
		SessionID: wf.Session().ID,
		State:     wf.State(),
		Starts:    []pointView{},
		Barriers:  []pointView{},
		TraceType: string(wf.TraceTypeSelected()),
	}
	for _, p := range wf.Starts() {
		view.Starts = append(view.Starts, viewPoint(p))
	}
	for _, p := range wf.Barriers() {
		view.Barriers = append(view.Barriers, viewPoint(p))
	}
	if pending := wf.Pending(); pending != nil {
		pv := &pendingView{
			Role:      string(pending.Role),
			AssetID:   pending.Element.AssetID,
			Terminals: []string{},
		}
		for _, t := range pending.Terminals() {
			pv.Terminals = append(pv.Terminals, t.ID)
		}
		view.Pending = pv
	}
	if result := wf.Result(); result != nil {
		_, layers := network.ResultLayers(result)
		view.ResultLayers = layers
	}
	if err := wf.RunErr(); err != nil {
		view.RunError = err.Error()
	}
	return view
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	wf, err := s.create(req.User)
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("INTERNAL", err.Error()))
		return
	}

	writeJSON(w, http.StatusCreated, viewSession(wf))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(wf))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.drop(chi.URLParam(r, "id")) {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	if err := wf.Begin(r.Context()); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(wf))
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}

	var req tapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	outcome, err := wf.Tap(r.Context(), network.MapPoint{X: req.X, Y: req.Y}, network.PointRole(req.Role))
	if err != nil {
		// An ignored lookup is not an HTTP error: nothing changed.
		if workflow.IsLookupFailure(err) {
			writeJSON(w, http.StatusOK, map[string]any{
				"ignored": true,
				"code":    string(workflow.ErrCodeLookupFailure),
				"session": viewSession(wf),
			})
			return
		}
		writeWorkflowError(w, err)
		return
	}

	body := map[string]any{"session": viewSession(wf)}
	if outcome.Point != nil {
		body["point"] = viewPoint(*outcome.Point)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSelectTerminal(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}

	var req terminalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	point, err := wf.SelectTerminal(r.Context(), req.Index)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"point":   viewPoint(*point),
		"session": viewSession(wf),
	})
}

func (s *Server) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	cancelled := wf.CancelPending()
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"session":   viewSession(wf),
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	if err := wf.Next(r.Context()); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(wf))
}

func (s *Server) handleSelectTraceType(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}

	var req traceTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	switch {
	case req.Config != "":
		cfg, ok := s.configByName(req.Config)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody("UNKNOWN_CONFIG", "no trace configuration named "+req.Config))
			return
		}
		if err := wf.SelectConfig(cfg); err != nil {
			writeWorkflowError(w, err)
			return
		}
	case req.Type != "":
		t, err := network.ParseTraceType(req.Type)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		if err := wf.SelectTraceType(t); err != nil {
			writeWorkflowError(w, err)
			return
		}
	default:
		writeBadRequest(w, errors.New("type or config is required"))
		return
	}

	writeJSON(w, http.StatusOK, viewSession(wf))
}

// handleRun submits the trace and responds once the submission settles.
// A reported submission failure is surfaced as 502 alongside the session
// snapshot (the workflow is in viewing_results with an empty result).
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}

	done, err := wf.RunTrace(r.Context())
	if err != nil {
		writeWorkflowError(w, err)
		return
	}

	select {
	case <-done:
	case <-r.Context().Done():
		writeJSON(w, http.StatusRequestTimeout, errorBody(string(workflow.ErrCodeCancellationRequested), "request cancelled while tracing"))
		return
	}

	if runErr := wf.RunErr(); runErr != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   errorBody(string(workflow.CodeOf(runErr)), runErr.Error()),
			"session": viewSession(wf),
		})
		return
	}

	writeJSON(w, http.StatusOK, viewSession(wf))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w)
		return
	}
	if err := wf.Reset(r.Context()); err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(wf))
}

// decodeJSON parses a request body, tolerating an empty body.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorBody(code, message string) map[string]any {
	return map[string]any{"code": code, "message": message}
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody("UNKNOWN_SESSION", "no such session"))
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody("BAD_REQUEST", err.Error()))
}

// writeWorkflowError maps workflow error codes onto HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	code := workflow.CodeOf(err)
	if code == "" {
		writeBadRequest(w, err)
		return
	}
	status := http.StatusBadRequest
	switch code {
	case workflow.ErrCodeInvalidTransition, workflow.ErrCodeTerminalSelectionRequired:
		status = http.StatusConflict
	case workflow.ErrCodeNoStartPoints:
		status = http.StatusUnprocessableEntity
	case workflow.ErrCodeTraceSubmissionFailure:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody(string(code), err.Error()))
}
