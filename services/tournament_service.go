package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
	"github.com/Dosada05/esports-arena/storage"
)

// TournamentService covers tournament CRUD and media uploads. Lifecycle
// transitions live in LifecycleService.
type TournamentService struct {
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	uploader        storage.FileUploader
	clock           clockwork.Clock
	logger          *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	uploader storage.FileUploader,
	clock clockwork.Clock,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		uploader:        uploader,
		clock:           clock,
		logger:          logger,
	}
}

func (s *TournamentService) Create(ctx context.Context, t *models.Tournament) (*models.Tournament, error) {
	if err := validateTournament(t); err != nil {
		return nil, err
	}
	t.Status = models.TournamentUpcoming
	if t.MaxParticipantsPerUser == 0 {
		t.MaxParticipantsPerUser = 1
	}
	if err := s.tournamentRepo.Create(ctx, nil, t); err != nil {
		return nil, err
	}
	s.logger.Info("tournament created", "tournament_id", t.ID, "title", t.Title, "game", t.Game)
	return t, nil
}

func validateTournament(t *models.Tournament) error {
	if strings.TrimSpace(t.Title) == "" {
		return newValidationError("title is required")
	}
	if strings.TrimSpace(t.Game) == "" {
		return newValidationError("game is required")
	}
	if t.TotalSlots < 2 {
		return newValidationError("total_slots must be at least 2, got %d", t.TotalSlots)
	}
	if t.EntryFee < 0 {
		return newValidationError("entry_fee must not be negative")
	}
	if t.PrizePool < 0 {
		return newValidationError("prize_pool must not be negative")
	}
	if !t.RegistrationDeadline.Before(t.StartTime) {
		return newValidationError("registration_deadline must be before start_time")
	}
	if total := t.TotalPrizes(); total > t.PrizePool {
		return newValidationError("prize table sums to %d, exceeding the prize pool of %d", total, t.PrizePool)
	}
	return nil
}

func (s *TournamentService) Get(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	s.decorate(tournament)
	return tournament, nil
}

func (s *TournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx, nil, filter)
	if err != nil {
		return nil, err
	}
	for i := range tournaments {
		s.decorate(&tournaments[i])
	}
	return tournaments, nil
}

// Update edits a tournament's configuration. Only upcoming tournaments can
// change: once registration opens, participants have acted on the published
// terms.
func (s *TournamentService) Update(ctx context.Context, t *models.Tournament) (*models.Tournament, error) {
	current, err := s.tournamentRepo.GetByID(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.TournamentUpcoming {
		return nil, newStateConflict("tournament", t.ID, string(current.Status), "configuration update")
	}
	if err := validateTournament(t); err != nil {
		return nil, err
	}
	if err := s.tournamentRepo.Update(ctx, nil, t); err != nil {
		return nil, err
	}
	return s.Get(ctx, t.ID)
}

// UploadBanner stores a banner image and points the tournament at it,
// removing any previous banner object.
func (s *TournamentService) UploadBanner(ctx context.Context, tournamentID int, filename, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, newValidationError("file storage is not configured")
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("banners/tournament_%d_%d%s", tournamentID, s.clock.Now().Unix(), path.Ext(filename))
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload banner for tournament %d: %w", tournamentID, err)
	}
	if err := s.tournamentRepo.UpdateBannerKey(ctx, nil, tournamentID, &key); err != nil {
		return nil, err
	}

	if tournament.BannerKey != nil && *tournament.BannerKey != key {
		if err := s.uploader.Delete(ctx, *tournament.BannerKey); err != nil {
			s.logger.Warn("failed to delete previous banner",
				"tournament_id", tournamentID, "key", *tournament.BannerKey, "error", err)
		}
	}
	return s.Get(ctx, tournamentID)
}

// AttachResultScreenshot stores a participant's result screenshot. Only
// meaningful once the tournament is underway.
func (s *TournamentService) AttachResultScreenshot(ctx context.Context, participantID int, filename, contentType string, file io.Reader) (*models.Participant, error) {
	if s.uploader == nil {
		return nil, newValidationError("file storage is not configured")
	}
	participant, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		return nil, err
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, participant.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentOngoing && tournament.Status != models.TournamentCompleted {
		return nil, newStateConflict("tournament", tournament.ID, string(tournament.Status), "screenshot upload")
	}

	key := fmt.Sprintf("screenshots/participant_%d_%d%s", participantID, s.clock.Now().Unix(), path.Ext(filename))
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload screenshot for participant %d: %w", participantID, err)
	}
	if err := s.participantRepo.UpdateScreenshotKey(ctx, nil, participantID, &key); err != nil {
		return nil, err
	}

	if participant.ScreenshotKey != nil && *participant.ScreenshotKey != key {
		if err := s.uploader.Delete(ctx, *participant.ScreenshotKey); err != nil {
			s.logger.Warn("failed to delete previous screenshot",
				"participant_id", participantID, "key", *participant.ScreenshotKey, "error", err)
		}
	}

	fresh, err := s.participantRepo.GetByID(ctx, nil, participantID)
	if err != nil {
		return nil, err
	}
	if fresh.ScreenshotKey != nil {
		url := s.uploader.GetPublicURL(*fresh.ScreenshotKey)
		fresh.ScreenshotURL = &url
	}
	return fresh, nil
}

func (s *TournamentService) decorate(t *models.Tournament) {
	if s.uploader == nil || t.BannerKey == nil {
		return
	}
	url := s.uploader.GetPublicURL(*t.BannerKey)
	t.BannerURL = &url
}
