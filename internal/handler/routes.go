package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/service"
)

const photoField = "photo"

// GetMe returns the caller's profile, balance and routes
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	view, err := h.points.LoadUserData(r.Context(), callerFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, "load user data", err)
		return
	}
	h.writeSuccess(w, view)
}

// SubmitRoute records a climbed route. Accepts a JSON body, or a multipart
// form when a photo is attached.
func (h *Handler) SubmitRoute(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated)
		return
	}

	var (
		in  service.RouteInput
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err = h.parseMultipartRoute(w, r)
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
	} else {
		in, err = h.parseJSONRoute(r)
	}
	if err != nil {
		h.writeServiceError(w, r, "submit route", err)
		return
	}
	if in.Photo != nil {
		if closer, ok := in.Photo.Body.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}

	result, err := h.points.SubmitRoute(r.Context(), caller, in)
	if err != nil {
		h.writeServiceError(w, r, "submit route", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: result})
}

func (h *Handler) parseJSONRoute(r *http.Request) (service.RouteInput, error) {
	var req submitRouteRequest
	if err := h.decodeJSON(r, &req); err != nil {
		return service.RouteInput{}, err
	}
	return service.RouteInput{
		Grade:       req.Grade,
		GradePoints: req.GradePoints,
		RouteName:   req.RouteName,
		BonusIDs:    req.BonusIDs,
	}, nil
}

func (h *Handler) parseMultipartRoute(w http.ResponseWriter, r *http.Request) (service.RouteInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.server.MaxUploadBytes)
	if err := r.ParseMultipartForm(service.MaxPhotoBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.RouteInput{}, fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrPayloadTooLarge, tooLarge.Limit)
		}
		return service.RouteInput{}, fmt.Errorf("%w: malformed multipart body", domain.ErrInvalidRequest)
	}

	req := submitRouteRequest{
		Grade:     r.FormValue("grade"),
		RouteName: r.FormValue("route_name"),
		BonusIDs:  splitBonusIDs(r.MultipartForm.Value["bonus_ids"]),
	}
	if raw := strings.TrimSpace(r.FormValue("grade_points")); raw != "" {
		points, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return service.RouteInput{}, fmt.Errorf("%w: grade_points must be an integer", domain.ErrInvalidRequest)
		}
		req.GradePoints = points
	}
	if err := h.validateStruct(&req); err != nil {
		return service.RouteInput{}, err
	}

	in := service.RouteInput{
		Grade:       req.Grade,
		GradePoints: req.GradePoints,
		RouteName:   req.RouteName,
		BonusIDs:    req.BonusIDs,
	}

	file, header, err := r.FormFile(photoField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return service.RouteInput{}, fmt.Errorf("%w: reading photo: %w", domain.ErrInvalidRequest, err)
	}
	in.Photo = &service.Photo{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return in, nil
}

// splitBonusIDs accepts bonus ids as repeated fields, comma separated, or both
func splitBonusIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// DeleteRoute removes one of the caller's routes and reverses its points
func (h *Handler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeID")
	result, err := h.points.DeleteRoute(r.Context(), callerFrom(r.Context()), routeID)
	if err != nil {
		h.writeServiceError(w, r, "delete route", err)
		return
	}
	h.writeSuccess(w, result)
}

// ConsumeTicket converts a winner's points into a recorded lottery win
func (h *Handler) ConsumeTicket(w http.ResponseWriter, r *http.Request) {
	var req consumeTicketRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeServiceError(w, r, "consume ticket", err)
		return
	}

	result, err := h.points.ConsumeTicket(r.Context(), callerFrom(r.Context()), req.UserKey, req.Tickets, req.Contest.toDomain())
	if err != nil {
		h.writeServiceError(w, r, "consume ticket", err)
		return
	}
	h.writeSuccess(w, result)
}

// ListWinCounts returns win counts keyed by user id
func (h *Handler) ListWinCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.points.GetAllLotteryWinCounts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list win counts", err)
		return
	}
	h.writeSuccess(w, counts)
}

// GetWinCount returns the number of wins recorded for a user id or email
func (h *Handler) GetWinCount(w http.ResponseWriter, r *http.Request) {
	userKey := chi.URLParam(r, "userKey")
	if userKey == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	count, err := h.points.GetLotteryWinCount(r.Context(), userKey)
	if err != nil {
		h.writeServiceError(w, r, "get win count", err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"user_key": userKey,
		"count":    count,
	})
}

// GetStats returns the gym-wide totals
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.points.LoadGlobalStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "load global stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetLeaderboard returns the top members by points
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	entries, err := h.points.GetTopN(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, "get leaderboard", err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
