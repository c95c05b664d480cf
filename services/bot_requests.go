package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/repositories"
)

const (
	voiceRequestTimeout = 30 * time.Second
	voiceRequestPoll    = 500 * time.Millisecond
)

// BotRequestBroker implements cross-process request/response over the
// bot_requests table: the web side inserts and polls, the bot side
// claims and fulfils. Both halves live here; which one runs depends on
// the process wiring in cmd/main.go.
type BotRequestBroker struct {
	requests repositories.BotRequestRepository
	executor SideEffectExecutor
	logger   *slog.Logger
}

func NewBotRequestBroker(
	requests repositories.BotRequestRepository,
	executor SideEffectExecutor,
	logger *slog.Logger,
) *BotRequestBroker {
	return &BotRequestBroker{requests: requests, executor: executor, logger: logger}
}

// RequestVoiceChannels inserts a create_voice_channels request and
// polls for its completion every 500ms, giving up after 30 seconds.
func (b *BotRequestBroker) RequestVoiceChannels(ctx context.Context, matchID int) (*models.VoiceChannelsResponse, error) {
	request := &models.BotRequest{
		Kind:    models.BotRequestCreateVoiceChannels,
		MatchID: matchID,
		Status:  models.BotRequestPending,
	}
	if err := b.requests.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("create voice channel request: %w", err)
	}

	deadline := time.NewTimer(voiceRequestTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(voiceRequestPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: request %d", ErrVoiceRequestTimeout, request.ID)
		case <-ticker.C:
			current, err := b.requests.Get(ctx, request.ID)
			if err != nil {
				return nil, err
			}
			switch current.Status {
			case models.BotRequestCompleted:
				if current.Response == nil {
					return nil, fmt.Errorf("%w: request %d completed without response", ErrVoiceRequestFailed, request.ID)
				}
				var resp models.VoiceChannelsResponse
				if err := json.Unmarshal([]byte(*current.Response), &resp); err != nil {
					return nil, fmt.Errorf("decode voice channel response: %w", err)
				}
				return &resp, nil
			case models.BotRequestFailed:
				detail := ""
				if current.ErrorDetail != nil {
					detail = *current.ErrorDetail
				}
				return nil, fmt.Errorf("%w: %s", ErrVoiceRequestFailed, detail)
			}
		}
	}
}

// FulfillPending is the bot-side scheduler task: it drains pending
// requests one claim at a time until the table is empty or the context
// is cancelled.
func (b *BotRequestBroker) FulfillPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		request, err := b.requests.ClaimNext(ctx, models.BotRequestCreateVoiceChannels)
		if err != nil {
			b.logger.Error("failed to claim bot request", slog.Any("error", err))
			return
		}
		if request == nil {
			return
		}
		b.fulfill(ctx, request)
	}
}

func (b *BotRequestBroker) fulfill(ctx context.Context, request *models.BotRequest) {
	resp, err := b.executor.CreateVoiceChannels(ctx, request.MatchID)
	if err != nil {
		b.logger.Warn("voice channel creation failed",
			slog.Int("request_id", request.ID),
			slog.Int("match_id", request.MatchID),
			slog.Any("error", err))
		if failErr := b.requests.Fail(ctx, request.ID, err.Error()); failErr != nil {
			b.logger.Error("failed to mark bot request failed", slog.Int("request_id", request.ID), slog.Any("error", failErr))
		}
		return
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		_ = b.requests.Fail(ctx, request.ID, "response encoding failed")
		return
	}
	if err := b.requests.Complete(ctx, request.ID, string(encoded)); err != nil {
		b.logger.Error("failed to complete bot request", slog.Int("request_id", request.ID), slog.Any("error", err))
	}
}
