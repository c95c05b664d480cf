package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mkaryagin/scrim-system/models"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrMapCodeNotFound = errors.New("map code not found")
)

type GameRepository interface {
	GetGame(ctx context.Context, id int) (*models.Game, error)
	GetMode(ctx context.Context, id int) (*models.GameMode, error)
	ListModes(ctx context.Context, gameID int) ([]*models.GameMode, error)
	ListMapsByMode(ctx context.Context, modeID int) ([]*models.GameMap, error)
	GetMapCode(ctx context.Context, gameID, mapID int) (string, error)
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) GetGame(ctx context.Context, id int) (*models.Game, error) {
	game := &models.Game{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, supports_map_codes FROM games WHERE id = $1`, id,
	).Scan(&game.ID, &game.Name, &game.SupportsMapCodes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return game, nil
}

func (r *postgresGameRepository) GetMode(ctx context.Context, id int) (*models.GameMode, error) {
	mode := &models.GameMode{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, game_id, name, team_size, is_custom FROM game_modes WHERE id = $1`, id,
	).Scan(&mode.ID, &mode.GameID, &mode.Name, &mode.TeamSize, &mode.IsCustom)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return mode, nil
}

func (r *postgresGameRepository) ListModes(ctx context.Context, gameID int) ([]*models.GameMode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, game_id, name, team_size, is_custom
		FROM game_modes
		WHERE game_id = $1
		ORDER BY id ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modes := make([]*models.GameMode, 0)
	for rows.Next() {
		var mode models.GameMode
		if scanErr := rows.Scan(&mode.ID, &mode.GameID, &mode.Name, &mode.TeamSize, &mode.IsCustom); scanErr != nil {
			return nil, scanErr
		}
		modes = append(modes, &mode)
	}
	return modes, rows.Err()
}

func (r *postgresGameRepository) ListMapsByMode(ctx context.Context, modeID int) ([]*models.GameMap, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mode_id, name
		FROM game_maps
		WHERE mode_id = $1
		ORDER BY id ASC`, modeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	maps := make([]*models.GameMap, 0)
	for rows.Next() {
		var m models.GameMap
		if scanErr := rows.Scan(&m.ID, &m.ModeID, &m.Name); scanErr != nil {
			return nil, scanErr
		}
		maps = append(maps, &m)
	}
	return maps, rows.Err()
}

func (r *postgresGameRepository) GetMapCode(ctx context.Context, gameID, mapID int) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `
		SELECT code FROM map_codes WHERE game_id = $1 AND map_id = $2`, gameID, mapID,
	).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrMapCodeNotFound
		}
		return "", err
	}
	return code, nil
}
