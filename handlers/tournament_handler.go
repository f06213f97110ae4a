package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Dosada05/esports-arena/models"
	"github.com/Dosada05/esports-arena/repositories"
	"github.com/Dosada05/esports-arena/services"
)

type TournamentHandler struct {
	tournaments *services.TournamentService
	lifecycle   *services.LifecycleService
	brackets    *services.BracketService
	payouts     *services.PayoutService
}

func NewTournamentHandler(
	tournaments *services.TournamentService,
	lifecycle *services.LifecycleService,
	brackets *services.BracketService,
	payouts *services.PayoutService,
) *TournamentHandler {
	return &TournamentHandler{
		tournaments: tournaments,
		lifecycle:   lifecycle,
		brackets:    brackets,
		payouts:     payouts,
	}
}

type tournamentInput struct {
	Title                  string         `json:"title"`
	Game                   string         `json:"game"`
	Description            string         `json:"description"`
	TotalSlots             int            `json:"total_slots"`
	EntryFee               int64          `json:"entry_fee"`
	PrizePool              int64          `json:"prize_pool"`
	Prizes                 []models.Prize `json:"prizes"`
	RegistrationDeadline   time.Time      `json:"registration_deadline"`
	StartTime              time.Time      `json:"start_time"`
	MaxParticipantsPerUser int            `json:"max_participants_per_user"`
}

func (in tournamentInput) toModel() *models.Tournament {
	return &models.Tournament{
		Title:                  in.Title,
		Game:                   in.Game,
		Description:            in.Description,
		TotalSlots:             in.TotalSlots,
		EntryFee:               in.EntryFee,
		PrizePool:              in.PrizePool,
		Prizes:                 in.Prizes,
		RegistrationDeadline:   in.RegistrationDeadline,
		StartTime:              in.StartTime,
		MaxParticipantsPerUser: in.MaxParticipantsPerUser,
	}
}

// CreateHandler handles POST /tournaments.
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var input tournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.Create(r.Context(), input.toModel())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler handles GET /tournaments/{tournamentID}.
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament, err := h.tournaments.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler handles GET /tournaments.
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListTournamentsFilter
	query := r.URL.Query()

	if game := query.Get("game"); game != "" {
		filter.Game = &game
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TournamentStatus(statusStr)
		filter.Status = &status
	}
	filter.Limit = 20
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			badRequestResponse(w, r, errors.New("invalid offset query parameter"))
			return
		}
		filter.Offset = offset
	}

	tournaments, err := h.tournaments.List(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateHandler handles PUT /tournaments/{tournamentID}.
func (h *TournamentHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input tournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament := input.toModel()
	tournament.ID = id

	updated, err := h.tournaments.Update(r.Context(), tournament)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": updated}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type statusInput struct {
	Status models.TournamentStatus `json:"status"`
}

// StatusHandler handles PATCH /tournaments/{tournamentID}/status.
func (h *TournamentHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input statusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.lifecycle.TransitionStatus(r.Context(), id, input.Status); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	tournament, err := h.tournaments.Get(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// BuildBracketHandler handles POST /tournaments/{tournamentID}/bracket.
func (h *TournamentHandler) BuildBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matches, err := h.brackets.BuildBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetBracketHandler handles GET /tournaments/{tournamentID}/bracket.
func (h *TournamentHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament, err := h.brackets.GetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CommitPayoutsHandler handles POST /tournaments/{tournamentID}/payouts.
func (h *TournamentHandler) CommitPayoutsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	payouts, err := h.payouts.CommitPayouts(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"payouts": payouts}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadBannerHandler handles POST /tournaments/{tournamentID}/banner.
func (h *TournamentHandler) UploadBannerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	file, header, err := r.FormFile("banner")
	if err != nil {
		badRequestResponse(w, r, errors.New("multipart field 'banner' is required"))
		return
	}
	defer file.Close()

	tournament, err := h.tournaments.UploadBanner(r.Context(), id,
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
