package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/esports-arena/middleware"
	"github.com/Dosada05/esports-arena/services"
)

type RegistrationHandler struct {
	registrations *services.RegistrationService
	lifecycle     *services.LifecycleService
	payouts       *services.PayoutService
	tournaments   *services.TournamentService
}

func NewRegistrationHandler(
	registrations *services.RegistrationService,
	lifecycle *services.LifecycleService,
	payouts *services.PayoutService,
	tournaments *services.TournamentService,
) *RegistrationHandler {
	return &RegistrationHandler{
		registrations: registrations,
		lifecycle:     lifecycle,
		payouts:       payouts,
		tournaments:   tournaments,
	}
}

// RegisterHandler handles POST /tournaments/{tournamentID}/participants.
func (h *RegistrationHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		errorResponse(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	tournamentID, err := idParam(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var details services.RegistrationDetails
	if err := readJSON(w, r, &details); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participant, err := h.registrations.TryRegister(r.Context(), tournamentID, userID, details)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CheckInHandler handles POST /participants/{participantID}/check-in.
func (h *RegistrationHandler) CheckInHandler(w http.ResponseWriter, r *http.Request) {
	participantID, err := idParam(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	participant, err := h.lifecycle.CheckIn(r.Context(), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DisqualifyHandler handles POST /participants/{participantID}/disqualify.
// Admin only.
func (h *RegistrationHandler) DisqualifyHandler(w http.ResponseWriter, r *http.Request) {
	participantID, err := idParam(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.lifecycle.Disqualify(r.Context(), participantID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClaimPrizeHandler handles POST /participants/{participantID}/claim.
func (h *RegistrationHandler) ClaimPrizeHandler(w http.ResponseWriter, r *http.Request) {
	participantID, err := idParam(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	participant, err := h.payouts.ClaimPrize(r.Context(), participantID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ScreenshotHandler handles POST /participants/{participantID}/screenshot.
func (h *RegistrationHandler) ScreenshotHandler(w http.ResponseWriter, r *http.Request) {
	participantID, err := idParam(r, "participantID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	file, header, err := r.FormFile("screenshot")
	if err != nil {
		badRequestResponse(w, r, errors.New("multipart field 'screenshot' is required"))
		return
	}
	defer file.Close()

	participant, err := h.tournaments.AttachResultScreenshot(r.Context(), participantID,
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participant": participant}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
