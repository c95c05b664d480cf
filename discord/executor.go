package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/mkaryagin/scrim-system/models"
	"github.com/mkaryagin/scrim-system/queue"
)

// signupClosedMarker is appended to an announcement when signups close;
// it also makes the edit idempotent on retry.
const signupClosedMarker = "🔒 Signups are closed."

type Config struct {
	GuildID string
	// AnnounceChannelIDs are the channels every announcement is mirrored
	// to; one MessageRef is returned per successful post.
	AnnounceChannelIDs []string
	// VoiceCategoryID is the parent category new match voice channels
	// are created under. Optional.
	VoiceCategoryID string
}

// Executor carries out chat and voice side effects against a live
// gateway session. Every method is safe to retry: the queue records
// failures and re-dispatches.
type Executor struct {
	session *discordgo.Session
	cfg     Config
	voice   *voicePlayer
	logger  *slog.Logger
}

func NewExecutor(session *discordgo.Session, cfg Config, clips ClipSource, logger *slog.Logger) (*Executor, error) {
	if session == nil {
		return nil, errors.New("discord: session is required")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("discord: guild id is required")
	}
	if len(cfg.AnnounceChannelIDs) == 0 {
		return nil, errors.New("discord: at least one announce channel is required")
	}
	return &Executor{
		session: session,
		cfg:     cfg,
		voice:   newVoicePlayer(session, cfg.GuildID, clips, logger),
		logger:  logger,
	}, nil
}

// PostAnnouncement mirrors content to every announce channel. It fails
// only when no channel accepted the message; partial failures are
// logged and the successful refs returned.
func (e *Executor) PostAnnouncement(ctx context.Context, content string) ([]models.MessageRef, error) {
	refs := make([]models.MessageRef, 0, len(e.cfg.AnnounceChannelIDs))
	var lastErr error
	for _, channelID := range e.cfg.AnnounceChannelIDs {
		msg, err := e.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
		if err != nil {
			lastErr = err
			e.logger.Warn("announcement post failed", slog.String("channel_id", channelID), slog.Any("error", err))
			continue
		}
		refs = append(refs, models.MessageRef{ChannelID: channelID, MessageID: msg.ID})
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("post announcement: no channel accepted the message: %w", lastErr)
	}
	return refs, nil
}

// DeleteAnnouncement removes the posted messages and, when set, the
// scheduled event. Already-deleted messages are not an error.
func (e *Executor) DeleteAnnouncement(ctx context.Context, refs []models.MessageRef, eventID string) error {
	var lastErr error
	for _, ref := range refs {
		err := e.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
		if err != nil && !isUnknownEntity(err) {
			lastErr = err
			e.logger.Warn("announcement delete failed",
				slog.String("channel_id", ref.ChannelID),
				slog.String("message_id", ref.MessageID),
				slog.Any("error", err))
		}
	}
	if eventID != "" {
		err := e.session.GuildScheduledEventDelete(e.cfg.GuildID, eventID, discordgo.WithContext(ctx))
		if err != nil && !isUnknownEntity(err) {
			lastErr = err
			e.logger.Warn("scheduled event delete failed", slog.String("event_id", eventID), slog.Any("error", err))
		}
	}
	return lastErr
}

// UpdateForSignupClosure appends the closed marker to each announcement
// message. Messages that already carry the marker are left alone.
func (e *Executor) UpdateForSignupClosure(ctx context.Context, refs []models.MessageRef) error {
	var lastErr error
	for _, ref := range refs {
		msg, err := e.session.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
		if err != nil {
			if isUnknownEntity(err) {
				continue
			}
			lastErr = err
			continue
		}
		if strings.Contains(msg.Content, signupClosedMarker) {
			continue
		}
		_, err = e.session.ChannelMessageEdit(ref.ChannelID, ref.MessageID,
			msg.Content+"\n\n"+signupClosedMarker, discordgo.WithContext(ctx))
		if err != nil {
			lastErr = err
			e.logger.Warn("signup closure edit failed",
				slog.String("channel_id", ref.ChannelID),
				slog.String("message_id", ref.MessageID),
				slog.Any("error", err))
		}
	}
	return lastErr
}

func (e *Executor) SendDirectMessage(ctx context.Context, userID, content string) error {
	dm, err := e.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel for user %s: %w", userID, err)
	}
	if _, err := e.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to user %s: %w", userID, err)
	}
	return nil
}

func (e *Executor) PlayVoiceLine(ctx context.Context, channelID string, line queue.VoiceLine) error {
	return e.voice.Play(ctx, channelID, line)
}

// CreateVoiceChannels creates the blue and red voice channels for a
// match under the configured category.
func (e *Executor) CreateVoiceChannels(ctx context.Context, matchID int) (*models.VoiceChannelsResponse, error) {
	blue, err := e.createVoiceChannel(ctx, fmt.Sprintf("Match %d · Blue", matchID))
	if err != nil {
		return nil, fmt.Errorf("create blue voice channel: %w", err)
	}
	red, err := e.createVoiceChannel(ctx, fmt.Sprintf("Match %d · Red", matchID))
	if err != nil {
		// The blue channel stays behind; nothing persists the pair until
		// both exist, so a later provisioning attempt starts fresh and
		// the stray has to be removed by hand.
		return nil, fmt.Errorf("create red voice channel: %w", err)
	}
	return &models.VoiceChannelsResponse{
		BlueChannelID: blue.ID,
		RedChannelID:  red.ID,
	}, nil
}

func (e *Executor) createVoiceChannel(ctx context.Context, name string) (*discordgo.Channel, error) {
	return e.session.GuildChannelCreateComplex(e.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildVoice,
		ParentID: e.cfg.VoiceCategoryID,
	}, discordgo.WithContext(ctx))
}

// isUnknownEntity reports whether the REST error means the target no
// longer exists (unknown message / channel / event).
func isUnknownEntity(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuildScheduledEvent:
		return true
	}
	return false
}
