package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/climbing-points/internal/domain"
)

type submitRouteRequest struct {
	Grade       string   `json:"grade" validate:"required,max=32"`
	GradePoints int64    `json:"grade_points" validate:"gte=0,lte=1000"`
	RouteName   string   `json:"route_name" validate:"max=120"`
	BonusIDs    []string `json:"bonus_ids" validate:"max=20,dive,required,max=64"`
}

type consumeTicketRequest struct {
	UserKey string         `json:"user_key" validate:"required"`
	Tickets int64          `json:"tickets" validate:"gte=0,lte=1000000"`
	Contest contestRequest `json:"contest"`
}

type contestRequest struct {
	TotalParticipants int      `json:"total_participants" validate:"gte=0"`
	TotalTickets      int64    `json:"total_tickets" validate:"gte=0"`
	ParticipantsList  []string `json:"participants_list"`
}

func (c contestRequest) toDomain() domain.ContestDetails {
	return domain.ContestDetails{
		TotalParticipants: c.TotalParticipants,
		TotalTickets:      c.TotalTickets,
		ParticipantsList:  c.ParticipantsList,
	}
}

// decodeJSON reads a JSON body into dst and validates it
func (h *Handler) decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidRequest)
	}
	return h.validateStruct(dst)
}

// validateStruct runs the validate tags of v and folds the failures into
// one ErrInvalidRequest message
func (h *Handler) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validating request: %w", err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(messages, "; "))
}
