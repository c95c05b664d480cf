package repositories

import (
	"context"
	"database/sql"
	"errors"
)

var ErrVoiceChannelsNotFound = errors.New("voice channels not found for match")

// VoiceRepository tracks voice channel assignments per match and which
// team was announced first last time, so repeated announcements
// alternate fairly.
type VoiceRepository interface {
	SaveChannels(ctx context.Context, matchID int, blueChannelID, redChannelID string) error
	GetChannels(ctx context.Context, matchID int) (blue, red string, err error)

	LastFirstTeam(ctx context.Context, matchID int) (*int, error)
	SetLastFirstTeam(ctx context.Context, matchID, teamID int) error
}

type postgresVoiceRepository struct {
	db *sql.DB
}

func NewPostgresVoiceRepository(db *sql.DB) VoiceRepository {
	return &postgresVoiceRepository{db: db}
}

func (r *postgresVoiceRepository) SaveChannels(ctx context.Context, matchID int, blueChannelID, redChannelID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_voice_channels (match_id, blue_channel_id, red_channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (match_id) DO UPDATE SET
			blue_channel_id = EXCLUDED.blue_channel_id,
			red_channel_id = EXCLUDED.red_channel_id`,
		matchID, blueChannelID, redChannelID)
	return err
}

func (r *postgresVoiceRepository) GetChannels(ctx context.Context, matchID int) (string, string, error) {
	var blue, red string
	err := r.db.QueryRowContext(ctx, `
		SELECT blue_channel_id, red_channel_id
		FROM match_voice_channels
		WHERE match_id = $1`, matchID,
	).Scan(&blue, &red)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrVoiceChannelsNotFound
		}
		return "", "", err
	}
	return blue, red, nil
}

func (r *postgresVoiceRepository) LastFirstTeam(ctx context.Context, matchID int) (*int, error) {
	var teamID int
	err := r.db.QueryRowContext(ctx, `
		SELECT last_first_team
		FROM voice_alternation
		WHERE match_id = $1`, matchID,
	).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &teamID, nil
}

func (r *postgresVoiceRepository) SetLastFirstTeam(ctx context.Context, matchID, teamID int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO voice_alternation (match_id, last_first_team)
		VALUES ($1, $2)
		ON CONFLICT (match_id) DO UPDATE SET last_first_team = EXCLUDED.last_first_team`,
		matchID, teamID)
	return err
}
