package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/repositories"
	"github.com/mkaryagin/scrim-system/services"
)

type LifecycleHandler struct {
	lifecycle   *services.LifecycleService
	matches     repositories.MatchRepository
	tournaments repositories.TournamentRepository
}

func NewLifecycleHandler(lifecycle *services.LifecycleService, matches repositories.MatchRepository, tournaments repositories.TournamentRepository) *LifecycleHandler {
	return &LifecycleHandler{
		lifecycle:   lifecycle,
		matches:     matches,
		tournaments: tournaments,
	}
}

type transitionRequest struct {
	Status models.Status `json:"status"`
}

func (h *LifecycleHandler) TransitionMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input transitionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !input.Status.Valid() {
		badRequestResponse(w, r, fmt.Errorf("%w: %q", services.ErrInvalidStatus, input.Status))
		return
	}

	match, err := h.lifecycle.TransitionMatch(r.Context(), matchID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LifecycleHandler) TransitionTournamentHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input transitionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !input.Status.Valid() {
		badRequestResponse(w, r, fmt.Errorf("%w: %q", services.ErrInvalidStatus, input.Status))
		return
	}

	tournament, err := h.lifecycle.TransitionTournament(r.Context(), tournamentID, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LifecycleHandler) GetMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matches.GetByID(r.Context(), matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			notFoundResponse(w, r)
			return
		}
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetBracketHandler returns the tournament with every bracket match,
// ordered winners-first by round and slot.
func (h *LifecycleHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.GetByID(r.Context(), tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			notFoundResponse(w, r)
			return
		}
		serverErrorResponse(w, r, err)
		return
	}

	matches, err := h.matches.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{
		"tournament": tournament,
		"matches":    matches,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
