package handlers

import (
	"fmt"
	"net/http"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/services"
)

type ScoreHandler struct {
	scoring   *services.ScoringService
	lifecycle *services.LifecycleService
}

func NewScoreHandler(scoring *services.ScoringService, lifecycle *services.LifecycleService) *ScoreHandler {
	return &ScoreHandler{scoring: scoring, lifecycle: lifecycle}
}

type gameResultRequest struct {
	WinnerTeamID int `json:"winner_team_id"`
}

// ReportGameResultHandler records a single map result. When the result
// decides the series, the match is transitioned to complete, which
// kicks off the winner announcement and cleanup queues.
func (h *ScoreHandler) ReportGameResultHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	gameNumber, err := getIDFromURL(r, "gameNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input gameResultRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WinnerTeamID <= 0 {
		badRequestResponse(w, r, fmt.Errorf("winner_team_id must be a positive integer"))
		return
	}

	decided, err := h.scoring.ReportGameResult(r.Context(), matchID, gameNumber, input.WinnerTeamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if decided {
		if _, err := h.lifecycle.TransitionMatch(r.Context(), matchID, models.StatusComplete); err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{
		"match_id":    matchID,
		"game_number": gameNumber,
		"decided":     decided,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
