package repositories

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/esports-arena/models"
)

// MemoryStore is an in-process Entity Store implementing the repository
// interfaces and TxRunner with the same guarantees the Postgres
// implementations get from the database: conditional writes, unique
// constraints on (tournament, user, team name) and (tournament, slot), and
// all-or-nothing transactions (snapshot rollback). It backs the test suite
// and local development without a database.
type MemoryStore struct {
	mu sync.Mutex
	tx *memoryTx

	tournaments  map[int]*models.Tournament
	participants map[int]*models.Participant
	matches      map[int]*models.Match

	nextTournamentID  int
	nextParticipantID int
	nextMatchID       int
}

// memoryTx is a transaction marker: repository methods receiving it know the
// store lock is already held. Its SQLExecutor methods are never called.
type memoryTx struct{}

func (*memoryTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	panic("memory store transaction used as a SQL executor")
}
func (*memoryTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	panic("memory store transaction used as a SQL executor")
}
func (*memoryTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	panic("memory store transaction used as a SQL executor")
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tournaments:       make(map[int]*models.Tournament),
		participants:      make(map[int]*models.Participant),
		matches:           make(map[int]*models.Match),
		nextTournamentID:  1,
		nextParticipantID: 1,
		nextMatchID:       1,
	}
}

func (m *MemoryStore) Tournaments() TournamentRepository   { return (*memoryTournamentRepo)(m) }
func (m *MemoryStore) Participants() ParticipantRepository { return (*memoryParticipantRepo)(m) }
func (m *MemoryStore) Matches() MatchRepository            { return (*memoryMatchRepo)(m) }

// RunInTx serializes transactions through the store lock and restores a
// snapshot when fn fails, so partial writes are never observable.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	tx := &memoryTx{}
	m.tx = tx
	err := fn(tx)
	m.tx = nil
	if err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// enter acquires the store lock unless exec is the currently open
// transaction, in which case the lock is already held by RunInTx.
func (m *MemoryStore) enter(exec SQLExecutor) func() {
	if tx, ok := exec.(*memoryTx); ok && tx == m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

type storeSnapshot struct {
	tournaments  map[int]*models.Tournament
	participants map[int]*models.Participant
	matches      map[int]*models.Match
	nextIDs      [3]int
}

func (m *MemoryStore) snapshot() storeSnapshot {
	s := storeSnapshot{
		tournaments:  make(map[int]*models.Tournament, len(m.tournaments)),
		participants: make(map[int]*models.Participant, len(m.participants)),
		matches:      make(map[int]*models.Match, len(m.matches)),
		nextIDs:      [3]int{m.nextTournamentID, m.nextParticipantID, m.nextMatchID},
	}
	for id, t := range m.tournaments {
		s.tournaments[id] = cloneTournament(t)
	}
	for id, p := range m.participants {
		s.participants[id] = cloneParticipant(p)
	}
	for id, mt := range m.matches {
		s.matches[id] = cloneMatch(mt)
	}
	return s
}

func (m *MemoryStore) restore(s storeSnapshot) {
	m.tournaments = s.tournaments
	m.participants = s.participants
	m.matches = s.matches
	m.nextTournamentID = s.nextIDs[0]
	m.nextParticipantID = s.nextIDs[1]
	m.nextMatchID = s.nextIDs[2]
}

func intPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func strPtr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func timePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTournament(t *models.Tournament) *models.Tournament {
	c := *t
	c.EndTime = timePtr(t.EndTime)
	c.BannerKey = strPtr(t.BannerKey)
	c.BannerURL = strPtr(t.BannerURL)
	c.Prizes = append([]models.Prize(nil), t.Prizes...)
	c.Participants = nil
	c.Matches = nil
	return &c
}

func cloneParticipant(p *models.Participant) *models.Participant {
	c := *p
	c.CheckedInAt = timePtr(p.CheckedInAt)
	c.FinalPosition = intPtr(p.FinalPosition)
	c.PrizeClaimedAt = timePtr(p.PrizeClaimedAt)
	c.ScreenshotKey = strPtr(p.ScreenshotKey)
	c.ScreenshotURL = strPtr(p.ScreenshotURL)
	return &c
}

func cloneMatch(m *models.Match) *models.Match {
	c := *m
	c.Participant1ID = intPtr(m.Participant1ID)
	c.Participant2ID = intPtr(m.Participant2ID)
	c.WinnerID = intPtr(m.WinnerID)
	c.ScheduledTime = timePtr(m.ScheduledTime)
	c.StartedAt = timePtr(m.StartedAt)
	c.CompletedAt = timePtr(m.CompletedAt)
	c.NextMatchID = intPtr(m.NextMatchID)
	c.WinnerToSlot = intPtr(m.WinnerToSlot)
	c.ResultDetails = strPtr(m.ResultDetails)
	return &c
}

// --- TournamentRepository ---

type memoryTournamentRepo MemoryStore

func (r *memoryTournamentRepo) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryTournamentRepo) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	m := r.store()
	defer m.enter(exec)()
	t.ID = m.nextTournamentID
	m.nextTournamentID++
	t.CreatedAt = time.Now().UTC()
	m.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (r *memoryTournamentRepo) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return cloneTournament(t), nil
}

func (r *memoryTournamentRepo) List(ctx context.Context, exec SQLExecutor, filter ListTournamentsFilter) ([]models.Tournament, error) {
	m := r.store()
	defer m.enter(exec)()
	out := make([]models.Tournament, 0)
	ids := make([]int, 0, len(m.tournaments))
	for id := range m.tournaments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		t := m.tournaments[id]
		if filter.Game != nil && t.Game != *filter.Game {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneTournament(t))
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.Tournament{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryTournamentRepo) Update(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	m := r.store()
	defer m.enter(exec)()
	cur, ok := m.tournaments[t.ID]
	if !ok {
		return ErrTournamentNotFound
	}
	cur.Title = t.Title
	cur.Game = t.Game
	cur.Description = t.Description
	cur.TotalSlots = t.TotalSlots
	cur.EntryFee = t.EntryFee
	cur.PrizePool = t.PrizePool
	cur.Prizes = append([]models.Prize(nil), t.Prizes...)
	cur.RegistrationDeadline = t.RegistrationDeadline
	cur.StartTime = t.StartTime
	cur.MaxParticipantsPerUser = t.MaxParticipantsPerUser
	return nil
}

func (r *memoryTournamentRepo) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.Status != from {
		return ErrStaleUpdate
	}
	t.Status = to
	return nil
}

func (r *memoryTournamentRepo) ReserveSlot(ctx context.Context, exec SQLExecutor, id int, expected int) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.CurrentParticipants != expected || t.CurrentParticipants >= t.TotalSlots {
		return ErrStaleUpdate
	}
	t.CurrentParticipants++
	return nil
}

func (r *memoryTournamentRepo) ReleaseSlot(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.CurrentParticipants <= 0 {
		return ErrStaleUpdate
	}
	t.CurrentParticipants--
	return nil
}

func (r *memoryTournamentRepo) SetParticipantCount(ctx context.Context, exec SQLExecutor, id int, count int) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.CurrentParticipants = count
	return nil
}

func (r *memoryTournamentRepo) SetHasBracket(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.HasBracket {
		return ErrStaleUpdate
	}
	t.HasBracket = true
	return nil
}

func (r *memoryTournamentRepo) SetResultsPublished(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	if t.ResultsPublished {
		return ErrStaleUpdate
	}
	t.ResultsPublished = true
	return nil
}

func (r *memoryTournamentRepo) SetEndTime(ctx context.Context, exec SQLExecutor, id int, endTime time.Time) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.EndTime = &endTime
	return nil
}

func (r *memoryTournamentRepo) UpdateBannerKey(ctx context.Context, exec SQLExecutor, id int, bannerKey *string) error {
	m := r.store()
	defer m.enter(exec)()
	t, ok := m.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.BannerKey = strPtr(bannerKey)
	return nil
}

func (r *memoryTournamentRepo) ListDueForClose(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	m := r.store()
	defer m.enter(exec)()
	var out []*models.Tournament
	for _, t := range m.tournaments {
		if t.Status == models.TournamentRegistrationOpen && !t.RegistrationDeadline.After(now) {
			out = append(out, cloneTournament(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- ParticipantRepository ---

type memoryParticipantRepo MemoryStore

func (r *memoryParticipantRepo) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryParticipantRepo) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	m := r.store()
	defer m.enter(exec)()
	for _, existing := range m.participants {
		if existing.TournamentID != p.TournamentID {
			continue
		}
		if existing.UserID == p.UserID && existing.TeamName == p.TeamName {
			return ErrTeamNameConflict
		}
		if existing.SlotNumber == p.SlotNumber {
			return ErrSlotNumberConflict
		}
	}
	p.ID = m.nextParticipantID
	m.nextParticipantID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.participants[p.ID] = cloneParticipant(p)
	return nil
}

func (r *memoryParticipantRepo) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error) {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (r *memoryParticipantRepo) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.ParticipantStatus) ([]*models.Participant, error) {
	m := r.store()
	defer m.enter(exec)()
	out := make([]*models.Participant, 0)
	for _, p := range m.participants {
		if p.TournamentID != tournamentID {
			continue
		}
		if status != nil && p.Status != *status {
			continue
		}
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotNumber < out[j].SlotNumber })
	return out, nil
}

func (r *memoryParticipantRepo) ListSlotNumbers(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error) {
	m := r.store()
	defer m.enter(exec)()
	var slots []int
	for _, p := range m.participants {
		if p.TournamentID == tournamentID {
			slots = append(slots, p.SlotNumber)
		}
	}
	sort.Ints(slots)
	return slots, nil
}

func (r *memoryParticipantRepo) CountByUser(ctx context.Context, exec SQLExecutor, tournamentID, userID int) (int, error) {
	m := r.store()
	defer m.enter(exec)()
	count := 0
	for _, p := range m.participants {
		if p.TournamentID == tournamentID && p.UserID == userID && p.Status != models.ParticipantDisqualified {
			count++
		}
	}
	return count, nil
}

func (r *memoryParticipantRepo) CountConfirmed(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	m := r.store()
	defer m.enter(exec)()
	count := 0
	for _, p := range m.participants {
		if p.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *memoryParticipantRepo) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	if _, ok := m.participants[id]; !ok {
		return ErrParticipantNotFound
	}
	delete(m.participants, id)
	return nil
}

func (r *memoryParticipantRepo) ConfirmPayment(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok || p.PaymentState != models.PaymentPending {
		return ErrStaleUpdate
	}
	p.PaymentState = models.PaymentConfirmed
	p.EntryFeePaid = amount
	return nil
}

func (r *memoryParticipantRepo) ListStalePending(ctx context.Context, exec SQLExecutor, olderThan time.Time) ([]*models.Participant, error) {
	m := r.store()
	defer m.enter(exec)()
	var out []*models.Participant
	for _, p := range m.participants {
		if p.PaymentState == models.PaymentPending && p.CreatedAt.Before(olderThan) {
			out = append(out, cloneParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryParticipantRepo) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.Status = status
	return nil
}

func (r *memoryParticipantRepo) UpdateStatusBulk(ctx context.Context, exec SQLExecutor, tournamentID int, from []models.ParticipantStatus, to models.ParticipantStatus) error {
	m := r.store()
	defer m.enter(exec)()
	for _, p := range m.participants {
		if p.TournamentID != tournamentID {
			continue
		}
		for _, f := range from {
			if p.Status == f {
				p.Status = to
				break
			}
		}
	}
	return nil
}

func (r *memoryParticipantRepo) CheckIn(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok || p.Status != models.ParticipantRegistered {
		return ErrStaleUpdate
	}
	p.Status = models.ParticipantCheckedIn
	p.CheckedInAt = &at
	return nil
}

func (r *memoryParticipantRepo) SetFinalPosition(ctx context.Context, exec SQLExecutor, id int, position *int) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.FinalPosition = intPtr(position)
	return nil
}

func (r *memoryParticipantRepo) SetStats(ctx context.Context, exec SQLExecutor, id int, kills, points int) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.Kills = kills
	p.Points = points
	return nil
}

func (r *memoryParticipantRepo) SetPrize(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.PrizeWon = amount
	return nil
}

func (r *memoryParticipantRepo) MarkPrizeClaimed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok || p.PrizeWon <= 0 || p.PrizeClaimed {
		return ErrStaleUpdate
	}
	p.PrizeClaimed = true
	p.PrizeClaimedAt = &at
	return nil
}

func (r *memoryParticipantRepo) UpdateScreenshotKey(ctx context.Context, exec SQLExecutor, id int, key *string) error {
	m := r.store()
	defer m.enter(exec)()
	p, ok := m.participants[id]
	if !ok {
		return ErrParticipantNotFound
	}
	p.ScreenshotKey = strPtr(key)
	return nil
}

// --- MatchRepository ---

type memoryMatchRepo MemoryStore

func (r *memoryMatchRepo) store() *MemoryStore { return (*MemoryStore)(r) }

func (r *memoryMatchRepo) Create(ctx context.Context, exec SQLExecutor, mt *models.Match) error {
	m := r.store()
	defer m.enter(exec)()
	mt.ID = m.nextMatchID
	m.nextMatchID++
	mt.CreatedAt = time.Now().UTC()
	m.matches[mt.ID] = cloneMatch(mt)
	return nil
}

func (r *memoryMatchRepo) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	return cloneMatch(mt), nil
}

func (r *memoryMatchRepo) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	m := r.store()
	defer m.enter(exec)()
	out := make([]*models.Match, 0)
	for _, mt := range m.matches {
		if mt.TournamentID != tournamentID {
			continue
		}
		if round != nil && mt.RoundNumber != *round {
			continue
		}
		if status != nil && mt.Status != *status {
			continue
		}
		out = append(out, cloneMatch(mt))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundNumber != out[j].RoundNumber {
			return out[i].RoundNumber < out[j].RoundNumber
		}
		return out[i].MatchNumber < out[j].MatchNumber
	})
	return out, nil
}

func (r *memoryMatchRepo) MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	m := r.store()
	defer m.enter(exec)()
	maxRound := 0
	for _, mt := range m.matches {
		if mt.TournamentID == tournamentID && mt.RoundNumber > maxRound {
			maxRound = mt.RoundNumber
		}
	}
	return maxRound, nil
}

func (r *memoryMatchRepo) UpdateNextMatch(ctx context.Context, exec SQLExecutor, id int, nextMatchID *int, winnerToSlot *int) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok {
		return ErrMatchNotFound
	}
	mt.NextMatchID = intPtr(nextMatchID)
	mt.WinnerToSlot = intPtr(winnerToSlot)
	return nil
}

func (r *memoryMatchRepo) SetParticipant(ctx context.Context, exec SQLExecutor, id int, slot int, participantID *int) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok {
		return ErrMatchNotFound
	}
	switch slot {
	case 1:
		mt.Participant1ID = intPtr(participantID)
	case 2:
		mt.Participant2ID = intPtr(participantID)
	default:
		return ErrStaleUpdate
	}
	return nil
}

func (r *memoryMatchRepo) Start(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok || mt.Status != models.MatchPending {
		return ErrStaleUpdate
	}
	mt.Status = models.MatchOngoing
	mt.StartedAt = &at
	return nil
}

func (r *memoryMatchRepo) RecordResult(ctx context.Context, exec SQLExecutor, id int, winnerID int, score1, score2 int, details *string, at time.Time) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok {
		return ErrStaleUpdate
	}
	if mt.Status != models.MatchPending && mt.Status != models.MatchOngoing {
		return ErrStaleUpdate
	}
	mt.WinnerID = &winnerID
	mt.Score1 = score1
	mt.Score2 = score2
	mt.ResultDetails = strPtr(details)
	mt.Status = models.MatchCompleted
	mt.CompletedAt = &at
	if mt.StartedAt == nil {
		mt.StartedAt = &at
	}
	return nil
}

func (r *memoryMatchRepo) Reopen(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok || mt.Status != models.MatchCompleted {
		return ErrStaleUpdate
	}
	mt.WinnerID = nil
	mt.Status = models.MatchPending
	mt.CompletedAt = nil
	return nil
}

func (r *memoryMatchRepo) Cancel(ctx context.Context, exec SQLExecutor, id int) error {
	m := r.store()
	defer m.enter(exec)()
	mt, ok := m.matches[id]
	if !ok || (mt.Status != models.MatchPending && mt.Status != models.MatchOngoing) {
		return ErrStaleUpdate
	}
	mt.Status = models.MatchCancelled
	return nil
}

func (r *memoryMatchRepo) CancelAllUnresolved(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	m := r.store()
	defer m.enter(exec)()
	for _, mt := range m.matches {
		if mt.TournamentID == tournamentID &&
			(mt.Status == models.MatchPending || mt.Status == models.MatchOngoing) {
			mt.Status = models.MatchCancelled
		}
	}
	return nil
}

func (r *memoryMatchRepo) ListFeeders(ctx context.Context, exec SQLExecutor, nextMatchID int) ([]*models.Match, error) {
	m := r.store()
	defer m.enter(exec)()
	var out []*models.Match
	for _, mt := range m.matches {
		if mt.NextMatchID != nil && *mt.NextMatchID == nextMatchID {
			out = append(out, cloneMatch(mt))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchNumber < out[j].MatchNumber })
	return out, nil
}
