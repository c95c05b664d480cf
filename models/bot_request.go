package models

import "time"

type BotRequestKind string

const (
	BotRequestCreateVoiceChannels BotRequestKind = "create_voice_channels"
)

type BotRequestStatus string

const (
	BotRequestPending    BotRequestStatus = "pending"
	BotRequestProcessing BotRequestStatus = "processing"
	BotRequestCompleted  BotRequestStatus = "completed"
	BotRequestFailed     BotRequestStatus = "failed"
)

// BotRequest is one row of the cross-process request/response table: the
// requester inserts and polls, the bot-side worker fulfils. Rows live
// for at most an hour before the janitor removes them.
type BotRequest struct {
	ID          int              `json:"id" db:"id"`
	Kind        BotRequestKind   `json:"kind" db:"kind"`
	MatchID     int              `json:"match_id" db:"match_id"`
	Status      BotRequestStatus `json:"status" db:"status"`
	Response    *string          `json:"response,omitempty" db:"response"`
	ErrorDetail *string          `json:"error_detail,omitempty" db:"error_detail"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

// VoiceChannelsResponse is the JSON payload written into a completed
// create_voice_channels request.
type VoiceChannelsResponse struct {
	BlueChannelID string `json:"blue_channel_id"`
	RedChannelID  string `json:"red_channel_id,omitempty"`
}
