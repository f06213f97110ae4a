package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/esports-arena/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	// MaxRound returns the tournament's final round number (0 if no bracket).
	MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateNextMatch(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int, winnerToSlot *int) error
	// SetParticipant writes one slot (1 or 2) of a match.
	SetParticipant(ctx context.Context, exec SQLExecutor, id int, slot int, participantID *int) error
	// Start flips pending -> ongoing; ErrStaleUpdate otherwise.
	Start(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	// RecordResult completes the match only while it is still pending or
	// ongoing; ErrStaleUpdate means the match resolved under the caller.
	RecordResult(ctx context.Context, exec SQLExecutor, id int, winnerID int, score1, score2 int, details *string, at time.Time) error
	// Reopen clears the result of a completed match. Admin override only.
	Reopen(ctx context.Context, exec SQLExecutor, id int) error
	// Cancel resolves a match as cancelled while pending or ongoing.
	Cancel(ctx context.Context, exec SQLExecutor, id int) error
	CancelAllUnresolved(ctx context.Context, exec SQLExecutor, tournamentID int) error
	// ListFeeders returns the matches wired to feed the given match.
	ListFeeders(ctx context.Context, exec SQLExecutor, nextMatchID int) ([]*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, round_number, match_number, participant1_id, participant2_id,
	score1, score2, winner_id, status, scheduled_time, started_at, completed_at,
	next_match_id, winner_to_slot, result_details, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.RoundNumber, &m.MatchNumber, &m.Participant1ID, &m.Participant2ID,
		&m.Score1, &m.Score2, &m.WinnerID, &m.Status, &m.ScheduledTime, &m.StartedAt, &m.CompletedAt,
		&m.NextMatchID, &m.WinnerToSlot, &m.ResultDetails, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			tournament_id, round_number, match_number, participant1_id, participant2_id,
			status, scheduled_time, next_match_id, winner_to_slot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.TournamentID, m.RoundNumber, m.MatchNumber, m.Participant1ID, m.Participant2ID,
		m.Status, m.ScheduledTime, m.NextMatchID, m.WinnerToSlot,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match R%dM%d for tournament %d: %w",
			m.RoundNumber, m.MatchNumber, m.TournamentID, err)
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	argID := 2

	if round != nil {
		query += fmt.Sprintf(" AND round_number = $%d", argID)
		args = append(args, *round)
		argID++
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *status)
	}
	query += ` ORDER BY round_number ASC, match_number ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var maxRound int
	err := executor.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(round_number), 0) FROM matches WHERE tournament_id = $1`, tournamentID,
	).Scan(&maxRound)
	return maxRound, err
}

func (r *postgresMatchRepository) UpdateNextMatch(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int, winnerToSlot *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET next_match_id = $1, winner_to_slot = $2 WHERE id = $3`,
		nextMatchID, winnerToSlot, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetParticipant(ctx context.Context, exec SQLExecutor, id int, slot int, participantID *int) error {
	executor := r.getExecutor(exec)
	column := "participant1_id"
	if slot == 2 {
		column = "participant2_id"
	} else if slot != 1 {
		return fmt.Errorf("invalid match slot %d", slot)
	}
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET `+column+` = $1 WHERE id = $2`, participantID, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Start(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		models.MatchOngoing, at, id, models.MatchPending)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresMatchRepository) RecordResult(ctx context.Context, exec SQLExecutor, id int, winnerID int, score1, score2 int, details *string, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches
		 SET winner_id = $1, score1 = $2, score2 = $3, result_details = $4,
		     status = $5, completed_at = $6, started_at = COALESCE(started_at, $6)
		 WHERE id = $7 AND status IN ($8, $9)`,
		winnerID, score1, score2, details,
		models.MatchCompleted, at, id, models.MatchPending, models.MatchOngoing)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresMatchRepository) Reopen(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches
		 SET winner_id = NULL, status = $1, completed_at = NULL
		 WHERE id = $2 AND status = $3`,
		models.MatchPending, id, models.MatchCompleted)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresMatchRepository) Cancel(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE id = $2 AND status IN ($3, $4)`,
		models.MatchCancelled, id, models.MatchPending, models.MatchOngoing)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresMatchRepository) CancelAllUnresolved(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx,
		`UPDATE matches SET status = $1 WHERE tournament_id = $2 AND status IN ($3, $4)`,
		models.MatchCancelled, tournamentID, models.MatchPending, models.MatchOngoing)
	return err
}

func (r *postgresMatchRepository) ListFeeders(ctx context.Context, exec SQLExecutor, nextMatchID int) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE next_match_id = $1 ORDER BY match_number ASC`

	rows, err := executor.QueryContext(ctx, query, nextMatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
