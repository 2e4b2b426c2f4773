package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smartpot-core/internal/binding"
)

// ConnectRequest is the body of POST /flowers/{id}/connect.
type ConnectRequest struct {
	SerialNumber string `json:"serial_number"`
}

// FlowerTransplantRequest is the body of POST /flowers/{id}/transplant.
// Which fields apply depends on Mode.
type FlowerTransplantRequest struct {
	Mode                string `json:"mode"`
	TargetHouseholdID   string `json:"target_household_id"`
	AssignReleasedPotTo string `json:"assign_released_pot_to"`
	TargetSmartPotID    string `json:"target_smartpot_id"`
}

// PotTransplantRequest is the body of POST /smartpots/{id}/transplant.
type PotTransplantRequest struct {
	Mode                   string `json:"mode"`
	TargetHouseholdID      string `json:"target_household_id"`
	AssignReleasedFlowerTo string `json:"assign_released_flower_to"`
	TargetFlowerID         string `json:"target_flower_id"`
}

// decodeBody decodes a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.binder.Connect(r.Context(), chi.URLParam(r, "id"), req.SerialNumber)
	s.writeBindingResult(w, r, "connect", result, err)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	result, err := s.binder.Disconnect(r.Context(), chi.URLParam(r, "id"))
	s.writeBindingResult(w, r, "disconnect", result, err)
}

func (s *Server) handleTransplantFlower(w http.ResponseWriter, r *http.Request) {
	var req FlowerTransplantRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	flowerID := chi.URLParam(r, "id")

	var result *binding.Result
	var err error
	switch req.Mode {
	case binding.ModeWithPot:
		result, err = s.binder.TransplantFlowerWithPot(r.Context(), flowerID, req.TargetHouseholdID)
	case binding.ModeWithoutPot:
		result, err = s.binder.TransplantFlowerWithoutPot(r.Context(), flowerID, req.TargetHouseholdID, req.AssignReleasedPotTo)
	case binding.ModeToPot:
		result, err = s.binder.TransplantFlowerToPot(r.Context(), flowerID, req.TargetSmartPotID)
	default:
		writeValidationError(w, "invalid request", "mode must be one of [with_pot, without_pot, to_pot]")
		return
	}
	s.writeBindingResult(w, r, "transplant_"+req.Mode, result, err)
}

func (s *Server) handleTransplantPot(w http.ResponseWriter, r *http.Request) {
	var req PotTransplantRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	potID := chi.URLParam(r, "id")

	var result *binding.Result
	var err error
	switch req.Mode {
	case binding.ModeWithFlower:
		result, err = s.binder.TransplantPotWithFlower(r.Context(), potID, req.TargetHouseholdID)
	case binding.ModeWithoutFlower:
		result, err = s.binder.TransplantPotWithoutFlower(r.Context(), potID, req.TargetHouseholdID, req.AssignReleasedFlowerTo)
	case binding.ModeToFlower:
		result, err = s.binder.TransplantPotToFlower(r.Context(), potID, req.TargetFlowerID)
	default:
		writeValidationError(w, "invalid request", "mode must be one of [with_flower, without_flower, to_flower]")
		return
	}
	s.writeBindingResult(w, r, "transplant_"+req.Mode, result, err)
}

// handleReconcile runs the repair sweep now. dry_run=true only reports.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		var err error
		if dryRun, err = strconv.ParseBool(v); err != nil {
			writeValidationError(w, "invalid query", "dry_run must be a boolean")
			return
		}
	}

	report, err := s.binder.Reconcile(r.Context(), dryRun)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Info("reconcile requested",
		"user_id", userID(r.Context()),
		"dry_run", dryRun,
		"issues", len(report.Issues),
		"repaired", report.Repaired(),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeBindingResult(w http.ResponseWriter, r *http.Request, op string, result *binding.Result, err error) {
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.logger.Debug("binding operation completed", "operation", op, "user_id", userID(r.Context()))
	writeJSON(w, http.StatusOK, result)
}
