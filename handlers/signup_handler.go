package handlers

import (
	"errors"
	"net/http"

	"github.com/mkaryagin/scrim-system/repositories"
	"github.com/mkaryagin/scrim-system/services"
)

type SignupHandler struct {
	forms   *services.SignupFormLoader
	signups repositories.SignupRepository
}

func NewSignupHandler(forms *services.SignupFormLoader, signups repositories.SignupRepository) *SignupHandler {
	return &SignupHandler{forms: forms, signups: signups}
}

func (h *SignupHandler) GetSignupFormHandler(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	form, err := h.forms.Form(gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"form": form}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type signupRequest struct {
	UserID string `json:"user_id"`
}

func (h *SignupHandler) AddSignupHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input signupRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID == "" {
		badRequestResponse(w, r, errors.New("user_id is required"))
		return
	}

	if err := h.signups.Add(r.Context(), tournamentID, input.UserID); err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{
		"tournament_id": tournamentID,
		"user_id":       input.UserID,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *SignupHandler) RemoveSignupHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input signupRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID == "" {
		badRequestResponse(w, r, errors.New("user_id is required"))
		return
	}

	if err := h.signups.Remove(r.Context(), tournamentID, input.UserID); err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
