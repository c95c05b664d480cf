package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mkaryagin/scrim-system/models"
)

var ErrTeamNotFound = errors.New("tournament team not found")

type TeamRepository interface {
	Create(ctx context.Context, q Querier, team *models.TournamentTeam) error
	AddMember(ctx context.Context, q Querier, member *models.TournamentTeamMember) error
	// ListByTournament returns teams with members loaded, ordered by seed.
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error)
	GetByID(ctx context.Context, id int) (*models.TournamentTeam, error)
	CountByTournament(ctx context.Context, tournamentID int) (int, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) Create(ctx context.Context, q Querier, team *models.TournamentTeam) error {
	query := `
		INSERT INTO tournament_teams (tournament_id, name, seed)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return q.QueryRowContext(ctx, query,
		team.TournamentID,
		team.Name,
		team.Seed,
	).Scan(&team.ID, &team.CreatedAt)
}

func (r *postgresTeamRepository) AddMember(ctx context.Context, q Querier, member *models.TournamentTeamMember) error {
	query := `
		INSERT INTO tournament_team_members (team_id, user_id)
		VALUES ($1, $2)
		RETURNING id`

	return q.QueryRowContext(ctx, query, member.TeamID, member.UserID).Scan(&member.ID)
}

func (r *postgresTeamRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentTeam, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tournament_id, name, seed, created_at
		FROM tournament_teams
		WHERE tournament_id = $1
		ORDER BY seed ASC, id ASC`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.TournamentTeam, 0)
	byID := make(map[int]*models.TournamentTeam)
	for rows.Next() {
		var team models.TournamentTeam
		if scanErr := rows.Scan(&team.ID, &team.TournamentID, &team.Name, &team.Seed, &team.CreatedAt); scanErr != nil {
			return nil, scanErr
		}
		teams = append(teams, &team)
		byID[team.ID] = &team
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.team_id, m.user_id
		FROM tournament_team_members m
		JOIN tournament_teams t ON t.id = m.team_id
		WHERE t.tournament_id = $1
		ORDER BY m.id ASC`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var member models.TournamentTeamMember
		if scanErr := memberRows.Scan(&member.ID, &member.TeamID, &member.UserID); scanErr != nil {
			return nil, scanErr
		}
		if team, ok := byID[member.TeamID]; ok {
			team.Members = append(team.Members, member)
		}
	}
	return teams, memberRows.Err()
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id int) (*models.TournamentTeam, error) {
	team := &models.TournamentTeam{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tournament_id, name, seed, created_at
		FROM tournament_teams
		WHERE id = $1`, id,
	).Scan(&team.ID, &team.TournamentID, &team.Name, &team.Seed, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return team, nil
}

func (r *postgresTeamRepository) CountByTournament(ctx context.Context, tournamentID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_teams WHERE tournament_id = $1`, tournamentID,
	).Scan(&count)
	return count, err
}
