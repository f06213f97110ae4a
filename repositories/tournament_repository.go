package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/esports-arena/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
)

type ListTournamentsFilter struct {
	Game   *string
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, exec SQLExecutor, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	// UpdateStatus transitions the status only when the row still holds
	// `from`; ErrStaleUpdate otherwise.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	// ReserveSlot increments current_participants only if it still equals
	// `expected` and capacity remains; ErrStaleUpdate otherwise.
	ReserveSlot(ctx context.Context, exec SQLExecutor, id int, expected int) error
	// ReleaseSlot is the compensating decrement for a failed provisional
	// registration.
	ReleaseSlot(ctx context.Context, exec SQLExecutor, id int) error
	SetParticipantCount(ctx context.Context, exec SQLExecutor, id int, count int) error
	// SetHasBracket flips has_bracket from false to true exactly once;
	// ErrStaleUpdate when the bracket already exists.
	SetHasBracket(ctx context.Context, exec SQLExecutor, id int) error
	// SetResultsPublished flips results_published from false to true exactly
	// once; ErrStaleUpdate when payouts were already committed.
	SetResultsPublished(ctx context.Context, exec SQLExecutor, id int) error
	SetEndTime(ctx context.Context, exec SQLExecutor, id int, endTime time.Time) error
	UpdateBannerKey(ctx context.Context, exec SQLExecutor, id int, bannerKey *string) error
	// ListDueForClose returns registration_open tournaments whose deadline
	// has passed, for the periodic sweep.
	ListDueForClose(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, title, game, description, total_slots, entry_fee, prize_pool, prizes,
	registration_deadline, start_time, end_time, status, current_participants,
	max_participants_per_user, results_published, has_bracket, banner_key, created_at`

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	var prizesJSON []byte
	err := row.Scan(
		&t.ID, &t.Title, &t.Game, &t.Description, &t.TotalSlots, &t.EntryFee, &t.PrizePool, &prizesJSON,
		&t.RegistrationDeadline, &t.StartTime, &t.EndTime, &t.Status, &t.CurrentParticipants,
		&t.MaxParticipantsPerUser, &t.ResultsPublished, &t.HasBracket, &t.BannerKey, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(prizesJSON) > 0 {
		if err := json.Unmarshal(prizesJSON, &t.Prizes); err != nil {
			return nil, fmt.Errorf("failed to decode prizes for tournament %d: %w", t.ID, err)
		}
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	prizesJSON, err := json.Marshal(t.Prizes)
	if err != nil {
		return fmt.Errorf("failed to encode prizes: %w", err)
	}

	query := `
		INSERT INTO tournaments (
			title, game, description, total_slots, entry_fee, prize_pool, prizes,
			registration_deadline, start_time, status, max_participants_per_user, banner_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	err = executor.QueryRowContext(ctx, query,
		t.Title, t.Game, t.Description, t.TotalSlots, t.EntryFee, t.PrizePool, prizesJSON,
		t.RegistrationDeadline, t.StartTime, t.Status, t.MaxParticipantsPerUser, t.BannerKey,
	).Scan(&t.ID, &t.CreatedAt)
	return err
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, exec SQLExecutor, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Game != nil {
		query += fmt.Sprintf(" AND game = $%d", argID)
		args = append(args, *filter.Game)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY start_time DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	prizesJSON, err := json.Marshal(t.Prizes)
	if err != nil {
		return fmt.Errorf("failed to encode prizes: %w", err)
	}

	query := `
		UPDATE tournaments SET
			title = $1, game = $2, description = $3, total_slots = $4,
			entry_fee = $5, prize_pool = $6, prizes = $7,
			registration_deadline = $8, start_time = $9, max_participants_per_user = $10
		WHERE id = $11`

	result, err := executor.ExecContext(ctx, query,
		t.Title, t.Game, t.Description, t.TotalSlots,
		t.EntryFee, t.PrizePool, prizesJSON,
		t.RegistrationDeadline, t.StartTime, t.MaxParticipantsPerUser,
		t.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// conditionalUpdate runs a guarded write and distinguishes a missing row from
// a failed guard.
func (r *postgresTournamentRepository) conditionalUpdate(ctx context.Context, executor SQLExecutor, id int, query string, args ...interface{}) error {
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if err := checkAffectedRows(result, ErrStaleUpdate); err != nil {
		if errors.Is(err, ErrStaleUpdate) {
			var exists bool
			if probeErr := executor.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, id).Scan(&exists); probeErr != nil {
				return probeErr
			}
			if !exists {
				return ErrTournamentNotFound
			}
		}
		return err
	}
	return nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	return r.conditionalUpdate(ctx, r.getExecutor(exec), id,
		`UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
}

func (r *postgresTournamentRepository) ReserveSlot(ctx context.Context, exec SQLExecutor, id int, expected int) error {
	return r.conditionalUpdate(ctx, r.getExecutor(exec), id,
		`UPDATE tournaments
		 SET current_participants = current_participants + 1
		 WHERE id = $1 AND current_participants = $2 AND current_participants < total_slots`,
		id, expected)
}

func (r *postgresTournamentRepository) ReleaseSlot(ctx context.Context, exec SQLExecutor, id int) error {
	return r.conditionalUpdate(ctx, r.getExecutor(exec), id,
		`UPDATE tournaments
		 SET current_participants = current_participants - 1
		 WHERE id = $1 AND current_participants > 0`, id)
}

func (r *postgresTournamentRepository) SetParticipantCount(ctx context.Context, exec SQLExecutor, id int, count int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET current_participants = $1 WHERE id = $2`, count, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetHasBracket(ctx context.Context, exec SQLExecutor, id int) error {
	return r.conditionalUpdate(ctx, r.getExecutor(exec), id,
		`UPDATE tournaments SET has_bracket = TRUE WHERE id = $1 AND has_bracket = FALSE`, id)
}

func (r *postgresTournamentRepository) SetResultsPublished(ctx context.Context, exec SQLExecutor, id int) error {
	return r.conditionalUpdate(ctx, r.getExecutor(exec), id,
		`UPDATE tournaments SET results_published = TRUE WHERE id = $1 AND results_published = FALSE`, id)
}

func (r *postgresTournamentRepository) SetEndTime(ctx context.Context, exec SQLExecutor, id int, endTime time.Time) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET end_time = $1 WHERE id = $2`, endTime, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, exec SQLExecutor, id int, bannerKey *string) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx,
		`UPDATE tournaments SET banner_key = $1 WHERE id = $2`, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListDueForClose(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND registration_deadline <= $2`

	rows, err := executor.QueryContext(ctx, query, models.TournamentRegistrationOpen, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for close: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

// pqConstraint extracts the violated constraint name, empty for non-pq errors.
func pqConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
