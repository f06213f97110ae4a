package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/esports-arena/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrTeamNameConflict maps the (tournament_id, user_id, team_name)
	// unique constraint.
	ErrTeamNameConflict = errors.New("team name already registered for this tournament")
	// ErrSlotNumberConflict maps the (tournament_id, slot_number) unique
	// constraint; safe to retry with another slot.
	ErrSlotNumberConflict = errors.New("slot number already taken")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, participant *models.Participant) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.ParticipantStatus) ([]*models.Participant, error)
	ListSlotNumbers(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error)
	// CountByUser counts a user's live registrations (any payment state) on
	// one tournament, for the per-user limit.
	CountByUser(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (int, error)
	// CountConfirmed is the authoritative count the cached
	// current_participants counter reconciles against.
	CountConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	// Delete removes a provisional registration whose payment never
	// confirmed. Confirmed participants are never deleted.
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	ConfirmPayment(ctx context.Context, exec SQLExecutor, id int, amount int64) error
	ListStalePending(ctx context.Context, exec SQLExecutor, olderThan time.Time) ([]*models.Participant, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error
	// UpdateStatusBulk moves every participant of a tournament currently in
	// one of `from` into `to`.
	UpdateStatusBulk(ctx context.Context, exec SQLExecutor, tournamentID int, from []models.ParticipantStatus, to models.ParticipantStatus) error
	// CheckIn flips registered -> checked_in; ErrStaleUpdate if the
	// participant is not in a check-in-able state.
	CheckIn(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	SetFinalPosition(ctx context.Context, exec SQLExecutor, id int, position *int) error
	SetStats(ctx context.Context, exec SQLExecutor, id int, kills, points int) error
	SetPrize(ctx context.Context, exec SQLExecutor, id int, amount int64) error
	// MarkPrizeClaimed succeeds at most once per participant; ErrStaleUpdate
	// when there is no unclaimed prize.
	MarkPrizeClaimed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	UpdateScreenshotKey(ctx context.Context, exec SQLExecutor, id int, key *string) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const participantColumns = `
	id, tournament_id, user_id, team_name, in_game_name, in_game_id,
	entry_fee_paid, payment_state, status, checked_in_at, slot_number,
	kills, points, final_position, prize_won, prize_claimed, prize_claimed_at,
	screenshot_key, created_at`

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID, &p.TournamentID, &p.UserID, &p.TeamName, &p.InGameName, &p.InGameID,
		&p.EntryFeePaid, &p.PaymentState, &p.Status, &p.CheckedInAt, &p.SlotNumber,
		&p.Kills, &p.Points, &p.FinalPosition, &p.PrizeWon, &p.PrizeClaimed, &p.PrizeClaimedAt,
		&p.ScreenshotKey, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (
			tournament_id, user_id, team_name, in_game_name, in_game_id,
			entry_fee_paid, payment_state, status, slot_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID, p.UserID, p.TeamName, p.InGameName, p.InGameID,
		p.EntryFeePaid, p.PaymentState, p.Status, p.SlotNumber,
	).Scan(&p.ID, &p.CreatedAt)
	return r.handleParticipantError(err)
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + ` FROM participants WHERE id = $1`

	p, err := scanParticipant(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.ParticipantStatus) ([]*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + ` FROM participants WHERE tournament_id = $1`
	args := []interface{}{tournamentID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY slot_number ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) ListSlotNumbers(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error) {
	executor := r.getExecutor(exec)
	rows, err := executor.QueryContext(ctx,
		`SELECT slot_number FROM participants WHERE tournament_id = $1 ORDER BY slot_number ASC`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *postgresParticipantRepository) CountByUser(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE tournament_id = $1 AND user_id = $2 AND status != $3`,
		tournamentID, userID, models.ParticipantDisqualified,
	).Scan(&count)
	return count, err
}

func (r *postgresParticipantRepository) CountConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE tournament_id = $1`, tournamentID,
	).Scan(&count)
	return count, err
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) ConfirmPayment(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET payment_state = $1, entry_fee_paid = $2 WHERE id = $3 AND payment_state = $4`,
		models.PaymentConfirmed, amount, id, models.PaymentPending)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresParticipantRepository) ListStalePending(ctx context.Context, exec SQLExecutor, olderThan time.Time) ([]*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + `
		FROM participants WHERE payment_state = $1 AND created_at < $2`

	rows, err := executor.QueryContext(ctx, query, models.PaymentPending, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateStatusBulk(ctx context.Context, exec SQLExecutor, tournamentID int, from []models.ParticipantStatus, to models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}
	_, err := executor.ExecContext(ctx,
		`UPDATE participants SET status = $1 WHERE tournament_id = $2 AND status = ANY($3)`,
		to, tournamentID, pq.Array(fromStrings))
	return err
}

func (r *postgresParticipantRepository) CheckIn(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET status = $1, checked_in_at = $2 WHERE id = $3 AND status = $4`,
		models.ParticipantCheckedIn, at, id, models.ParticipantRegistered)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresParticipantRepository) SetFinalPosition(ctx context.Context, exec SQLExecutor, id int, position *int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET final_position = $1 WHERE id = $2`, position, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetStats(ctx context.Context, exec SQLExecutor, id int, kills, points int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET kills = $1, points = $2 WHERE id = $3`, kills, points, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetPrize(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET prize_won = $1 WHERE id = $2`, amount, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) MarkPrizeClaimed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET prize_claimed = TRUE, prize_claimed_at = $1
		 WHERE id = $2 AND prize_won > 0 AND prize_claimed = FALSE`, at, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStaleUpdate)
}

func (r *postgresParticipantRepository) UpdateScreenshotKey(ctx context.Context, exec SQLExecutor, id int, key *string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE participants SET screenshot_key = $1 WHERE id = $2`, key, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) handleParticipantError(err error) error {
	if err == nil {
		return nil
	}
	switch pqConstraint(err) {
	case "participants_tournament_id_user_id_team_name_key":
		return ErrTeamNameConflict
	case "participants_tournament_id_slot_number_key":
		return ErrSlotNumberConflict
	case "participants_tournament_id_fkey":
		return ErrTournamentNotFound
	}
	return err
}
