package attendee_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	attendees "ms-checkin/internal/attendees/service"
	"ms-checkin/internal/badges"
	"ms-checkin/internal/importer"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/raffle"
	"ms-checkin/internal/utils"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

type Importer interface {
	Import(ctx context.Context) (importer.ImportResult, error)
}

type ImportStatusReader interface {
	LoadLast(ctx context.Context) (*importer.ImportResult, error)
}

type Handler struct {
	Attendees    *attendees.AttendeeService
	Raffle       *raffle.Selector
	Importer     Importer
	ImportStatus ImportStatusReader // nil when Redis is disabled
	Badges       *badges.Generator
	RaffleRoles  []models.Role
	Logger       *logger.Logger
}

type searchResponse struct {
	Searched  bool              `json:"searched"`
	Attendees []models.Attendee `json:"attendees"`
}

// checkinBody accepts either code and source or a scanned badge token.
type checkinBody struct {
	Code   string `json:"code"`
	Source string `json:"source"`
	Badge  string `json:"badge"`
	Day    int    `json:"day"`
}

type drawBody struct {
	Roles []string `json:"roles"`
}

// ---------------- ATTENDEES ----------------

func (h *Handler) SearchAttendees(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	found, err := h.Attendees.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, "SearchAttendees", err)
		return
	}
	if found == nil {
		found = []models.Attendee{}
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d attendees found", len(found)),
		searchResponse{Searched: query != "", Attendees: found})
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	all, err := h.Attendees.List(r.Context())
	if err != nil {
		h.writeError(w, "ListAttendees", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d attendees", len(all)), all)
}

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Attendees.ExportCSV(r.Context(), &buf); err != nil {
		h.writeError(w, "ExportCSV", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendees.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Attendees.Stats(r.Context())
	if err != nil {
		h.writeError(w, "Stats", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Attendee statistics", stats)
}

func (h *Handler) GetAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attendeeID(w, r)
	if !ok {
		return
	}
	attendee, err := h.Attendees.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetAttendee", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Attendee found", attendee)
}

func (h *Handler) UpdateAttendee(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attendeeID(w, r)
	if !ok {
		return
	}

	var req attendees.EditRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateAttendee: bad body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	updated, err := h.Attendees.Edit(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "UpdateAttendee", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Attendee updated", updated)
}

func (h *Handler) Badge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.attendeeID(w, r)
	if !ok {
		return
	}
	attendee, err := h.Attendees.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "Badge", err)
		return
	}

	png, err := h.Badges.PNG(attendee)
	if err != nil {
		h.writeError(w, "Badge", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ---------------- CHECK-IN ----------------

func (h *Handler) Checkin(w http.ResponseWriter, r *http.Request) {
	var body checkinBody
	if err := decodeStrict(w, r, &body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	req := attendees.CheckinRequest{Code: body.Code, Source: body.Source, Day: body.Day}
	if body.Badge != "" {
		code, source, err := h.Badges.Decode(body.Badge)
		if err != nil {
			h.writeError(w, "Checkin", err)
			return
		}
		req.Code, req.Source = code, string(source)
	}

	attendee, err := h.Attendees.Checkin(r.Context(), req)
	if err != nil {
		h.writeError(w, "Checkin", err)
		return
	}

	message := fmt.Sprintf("Checked in for day %d", req.Day)
	if attendee.CheckinFor(req.Day) == nil {
		message = fmt.Sprintf("Check-in for day %d cleared", req.Day)
	}
	utils.WriteSuccess(w, http.StatusOK, message, attendee)
}

// ---------------- IMPORT ----------------

func (h *Handler) RunImport(w http.ResponseWriter, r *http.Request) {
	result, err := h.Importer.Import(r.Context())
	if err != nil {
		h.writeError(w, "RunImport", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK,
		fmt.Sprintf("Imported %d, ignored %d", result.Imported, result.Ignored), result)
}

func (h *Handler) LastImport(w http.ResponseWriter, r *http.Request) {
	if h.ImportStatus == nil {
		utils.WriteError(w, http.StatusNotFound, "No import recorded", "import status cache is disabled")
		return
	}
	last, err := h.ImportStatus.LoadLast(r.Context())
	if err != nil {
		h.writeError(w, "LastImport", err)
		return
	}
	if last == nil {
		utils.WriteError(w, http.StatusNotFound, "No import recorded", "no import has run yet")
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Last import", last)
}

// ---------------- RAFFLE ----------------

func (h *Handler) Draw(w http.ResponseWriter, r *http.Request) {
	roles := h.RaffleRoles

	// the body is optional
	var body drawBody
	if err := decodeStrict(w, r, &body); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if len(body.Roles) > 0 {
		parsed, err := raffle.ParseRoles(body.Roles)
		if err != nil {
			h.writeError(w, "Draw", err)
			return
		}
		roles = parsed
	}

	winner, err := h.Raffle.DrawOne(r.Context(), roles)
	if err != nil {
		h.writeError(w, "Draw", err)
		return
	}
	if winner == nil {
		utils.WriteSuccess(w, http.StatusOK, "No eligible attendees left", nil)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Winner drawn", winner)
}

func (h *Handler) Pool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	roles := h.RaffleRoles
	if raw := q.Get("roles"); raw != "" {
		parsed, err := raffle.ParseRoles(splitCSV(raw))
		if err != nil {
			h.writeError(w, "Pool", err)
			return
		}
		roles = parsed
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid limit", err.Error())
			return
		}
		limit = n
	}

	pool, err := h.Raffle.PoolPreview(r.Context(), roles, splitCSV(q.Get("fields")), limit)
	if err != nil {
		h.writeError(w, "Pool", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d attendees in pool", len(pool)), pool)
}

// ---------------- HELPERS ----------------

func (h *Handler) attendeeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid attendee id", fmt.Sprintf("%q is not an attendee id", raw))
		return 0, false
	}
	return id, true
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidDay),
		errors.Is(err, models.ErrUnknownField),
		errors.Is(err, badges.ErrInvalidToken):
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, models.ErrAttendeeNotFound):
		utils.WriteError(w, http.StatusNotFound, "Attendee not found", err.Error())
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", "unexpected error, see server logs")
	}
}

func decodeStrict(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
