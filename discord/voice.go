package discord

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mkaryagin/scrim-system/queue"
)

const (
	voiceReadyTimeout    = 10 * time.Second
	voicePlaybackTimeout = 30 * time.Second
)

// ErrVoiceBusy is returned when a line is already playing in the target
// channel. The item fails rather than stacking lines behind each other;
// overlapping announcements are dropped.
var ErrVoiceBusy = errors.New("discord: voice line already playing in channel")

// ClipSource provides the pre-encoded voice clips. Satisfied by the
// object store; clips are DCA files (length-prefixed opus frames).
type ClipSource interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type voicePlayer struct {
	session *discordgo.Session
	guildID string
	clips   ClipSource
	logger  *slog.Logger

	mu      sync.Mutex
	playing map[string]struct{} // channelID -> in flight
}

func newVoicePlayer(session *discordgo.Session, guildID string, clips ClipSource, logger *slog.Logger) *voicePlayer {
	return &voicePlayer{
		session: session,
		guildID: guildID,
		clips:   clips,
		playing: make(map[string]struct{}),
		logger:  logger,
	}
}

func clipKey(line queue.VoiceLine) string {
	return "voice/" + string(line) + ".dca"
}

// Play joins the voice channel, streams the clip for the given line and
// disconnects. At most one playback per channel at a time.
func (p *voicePlayer) Play(ctx context.Context, channelID string, line queue.VoiceLine) error {
	p.mu.Lock()
	if _, busy := p.playing[channelID]; busy {
		p.mu.Unlock()
		return ErrVoiceBusy
	}
	p.playing[channelID] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.playing, channelID)
		p.mu.Unlock()
	}()

	body, err := p.clips.Download(ctx, clipKey(line))
	if err != nil {
		return fmt.Errorf("fetch voice clip %q: %w", line, err)
	}
	defer body.Close()

	vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	defer func() {
		if err := vc.Disconnect(); err != nil {
			p.logger.Warn("voice disconnect failed", slog.String("channel_id", channelID), slog.Any("error", err))
		}
	}()

	if err := waitVoiceReady(ctx, vc); err != nil {
		return err
	}

	if err := vc.Speaking(true); err != nil {
		return fmt.Errorf("set speaking: %w", err)
	}
	defer func() { _ = vc.Speaking(false) }()

	return streamDCA(ctx, body, vc.OpusSend)
}

func waitVoiceReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	deadline := time.NewTimer(voiceReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errors.New("voice connection not ready after 10s")
		case <-tick.C:
		}
	}
}

// streamDCA feeds length-prefixed opus frames into the send channel.
// The clip is capped at voicePlaybackTimeout so a corrupt file can
// never pin the connection.
func streamDCA(ctx context.Context, r io.Reader, send chan<- []byte) error {
	deadline := time.NewTimer(voicePlaybackTimeout)
	defer deadline.Stop()
	for {
		var frameLen int16
		err := binary.Read(r, binary.LittleEndian, &frameLen)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read clip frame length: %w", err)
		}
		if frameLen <= 0 {
			return fmt.Errorf("invalid clip frame length %d", frameLen)
		}
		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(r, frame); err != nil {
			return fmt.Errorf("read clip frame: %w", err)
		}
		select {
		case send <- frame:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errors.New("voice playback exceeded 30s cap")
		}
	}
}
