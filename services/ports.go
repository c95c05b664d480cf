package services

import (
	"context"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
)

// SideEffectExecutor is the chat/voice collaborator behind every queue
// item. Implementations may fail for any external reason; failures are
// recorded on the queue row and never crash a dispatcher cycle.
type SideEffectExecutor interface {
	PostAnnouncement(ctx context.Context, content string) ([]models.MessageRef, error)
	DeleteAnnouncement(ctx context.Context, refs []models.MessageRef, eventID string) error
	UpdateForSignupClosure(ctx context.Context, refs []models.MessageRef) error
	SendDirectMessage(ctx context.Context, userID, content string) error
	PlayVoiceLine(ctx context.Context, channelID string, line queue.VoiceLine) error
	CreateVoiceChannels(ctx context.Context, matchID int) (*models.VoiceChannelsResponse, error)
}

// Enqueuer is the slice of queue.Store the services need; the generic
// parameter pins each field to its queue kind at compile time.
type Enqueuer[P queue.Payload] interface {
	Enqueue(ctx context.Context, entityID int, payload P) (*queue.Item[P], error)
	ActiveExists(ctx context.Context, entityID int, match func(P) bool) (bool, error)
}

// ScoringInitializer creates the per-map score rows for a match. The
// bracket generator calls it inside its transaction, battle entry calls
// it outside one.
type ScoringInitializer interface {
	InitializeMatchGames(ctx context.Context, q repositories.Querier, matchID int, mapIDs []int) error
}

// VoiceChannelProvisioner obtains voice channels for a match, possibly
// by round-tripping through another process.
type VoiceChannelProvisioner interface {
	RequestVoiceChannels(ctx context.Context, matchID int) (*models.VoiceChannelsResponse, error)
}

// BracketProgression is the slice of brackets.Generator the
// round-completion poller drives.
type BracketProgression interface {
	GenerateFirstRound(ctx context.Context, tournament *models.Tournament) ([]*models.Match, error)
	GenerateNextRound(ctx context.Context, tournamentID, currentRound int, bracket models.BracketType) ([]*models.Match, error)
	GenerateLosersRound(ctx context.Context, tournamentID, eliminatedFromWinnersRound int, eliminatedTeamIDs []int) ([]*models.Match, error)
	GenerateGrandFinal(ctx context.Context, tournamentID, winnersBracketWinnerID, losersBracketWinnerID int) (*models.Match, error)
	IsRoundComplete(ctx context.Context, tournamentID, round int, bracket models.BracketType) (bool, error)
	IsBracketReadyForFinals(ctx context.Context, tournamentID int, bracket models.BracketType) (bool, error)
	GetBracketWinner(ctx context.Context, tournamentID int, bracket models.BracketType) (*int, error)
}

// RoomBroadcaster pushes live updates to bracket viewers.
type RoomBroadcaster interface {
	BroadcastToRoom(roomID string, event brackets.Event)
}
