package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/heatlink/heatlink/pkg/log"
	"github.com/heatlink/heatlink/pkg/types"
	"github.com/heatlink/heatlink/pkg/uplink"
)

// flexValue accepts a JSON string or number and normalizes it to the string
// form the uplink expects.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*f = flexValue(t)
	case float64:
		*f = flexValue(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return fmt.Errorf("value must be a string or number")
	}
	return nil
}

// audit records the call. Failures are logged but never fail the request.
func (s *Server) audit(r *http.Request, record types.CallRecord) {
	ctx := r.Context()
	record.Timestamp = time.Now().UTC()
	if err := s.storage.InsertCall(ctx, record); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to record call",
			slog.String("service", record.Service),
			slog.Any("error", err),
		)
	}
}

// resolveSystem finds the session owning the system and writes a 404 if no
// connection owns it.
func (s *Server) resolveSystem(w http.ResponseWriter, r *http.Request, system int) (uplink.Session, bool) {
	session, err := s.registry.System(r.Context(), system)
	if err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to resolve system",
			slog.Int("system", system),
			slog.Any("error", err),
		)
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (s *Server) handleSetSmarthomeMode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		System int    `json:"system"`
		Mode   string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.System <= 0 {
		writeJSONError(w, "system is required", http.StatusBadRequest)
		return
	}
	mode, err := types.ParseSmarthomeMode(req.Mode)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := types.CallRecord{
		Service: types.ServiceSetSmarthomeMode,
		System:  req.System,
		Mode:    mode,
	}

	session, ok := s.resolveSystem(w, r, req.System)
	if !ok {
		record.Error = "system not found"
		s.audit(r, record)
		return
	}

	if err := session.PutSmarthomeMode(ctx, req.System, mode); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set smarthome mode",
			slog.Int("system", req.System),
			slog.String("mode", string(mode)),
			slog.Any("error", err),
		)
		record.Error = err.Error()
		s.audit(r, record)
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.audit(r, record)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		System    int       `json:"system"`
		Parameter string    `json:"parameter"`
		Value     flexValue `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.System <= 0 {
		writeJSONError(w, "system is required", http.StatusBadRequest)
		return
	}
	if req.Parameter == "" {
		writeJSONError(w, "parameter is required", http.StatusBadRequest)
		return
	}
	if req.Value == "" {
		writeJSONError(w, "value is required", http.StatusBadRequest)
		return
	}

	record := types.CallRecord{
		Service:   types.ServiceSetParameter,
		System:    req.System,
		Parameter: req.Parameter,
		Value:     string(req.Value),
	}

	session, ok := s.resolveSystem(w, r, req.System)
	if !ok {
		record.Error = "system not found"
		s.audit(r, record)
		return
	}

	if err := session.PutParameter(ctx, req.System, req.Parameter, string(req.Value)); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set parameter",
			slog.Int("system", req.System),
			slog.String("parameter", req.Parameter),
			slog.Any("error", err),
		)
		record.Error = err.Error()
		s.audit(r, record)
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.audit(r, record)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetParameter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		System    int    `json:"system"`
		Parameter string `json:"parameter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.System <= 0 {
		writeJSONError(w, "system is required", http.StatusBadRequest)
		return
	}
	if req.Parameter == "" {
		writeJSONError(w, "parameter is required", http.StatusBadRequest)
		return
	}

	record := types.CallRecord{
		Service:   types.ServiceGetParameter,
		System:    req.System,
		Parameter: req.Parameter,
	}

	session, ok := s.resolveSystem(w, r, req.System)
	if !ok {
		record.Error = "system not found"
		s.audit(r, record)
		return
	}

	parameter, err := session.GetParameter(ctx, req.System, req.Parameter)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get parameter",
			slog.Int("system", req.System),
			slog.String("parameter", req.Parameter),
			slog.Any("error", err),
		)
		record.Error = err.Error()
		s.audit(r, record)
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	record.Value = parameter.DisplayValue
	s.audit(r, record)

	// the read result is also delivered as a notification so it can be
	// looked up after the fact
	message, err := json.MarshalIndent(parameter, "", "  ")
	if err == nil {
		if err := s.notifier.Create(ctx, req.Parameter, string(message)); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to create notification", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(parameter); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleSetThermostat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		System         int      `json:"system"`
		ID             int      `json:"id"`
		Name           string   `json:"name"`
		CurrentTemp    *float64 `json:"currentTemperature"`
		TargetTemp     *float64 `json:"targetTemperature"`
		ValvePosition  *int     `json:"valvePosition"`
		ClimateSystems []int    `json:"climateSystems"`
		Track          bool     `json:"track"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.System <= 0 {
		writeJSONError(w, "system is required", http.StatusBadRequest)
		return
	}
	thermostat := types.Thermostat{
		ExternalID:     req.ID,
		Name:           req.Name,
		ActualTemp:     types.ScaleTemp(req.CurrentTemp),
		TargetTemp:     types.ScaleTemp(req.TargetTemp),
		ValvePosition:  req.ValvePosition,
		ClimateSystems: req.ClimateSystems,
	}
	if err := thermostat.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := types.CallRecord{
		Service:    types.ServiceSetThermostat,
		System:     req.System,
		Thermostat: &thermostat,
	}

	session, ok := s.resolveSystem(w, r, req.System)
	if !ok {
		record.Error = "system not found"
		s.audit(r, record)
		return
	}

	var err error
	if req.Track {
		err = s.publisher.Track(ctx, req.System, thermostat)
	} else {
		// a one-shot publish also ends any previous tracking of this id
		s.publisher.Untrack(thermostat.ExternalID)
		err = session.PostSmarthomeThermostat(ctx, req.System, thermostat)
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to publish thermostat",
			slog.Int("system", req.System),
			slog.Int("externalID", thermostat.ExternalID),
			slog.Any("error", err),
		)
		record.Error = err.Error()
		s.audit(r, record)
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.audit(r, record)
	w.WriteHeader(http.StatusOK)
}
