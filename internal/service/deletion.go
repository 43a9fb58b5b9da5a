package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/climbing-points/internal/domain"
)

// DeleteResult is returned after a route is reversed
type DeleteResult struct {
	DeletedPoints int64            `json:"deleted_points"`
	View          *domain.UserView `json:"view"`
}

// DeleteRoute removes one of the caller's routes and takes back its points.
// The balance is not floored at zero.
func (s *PointsService) DeleteRoute(ctx context.Context, caller *domain.Identity, routeID string) (*DeleteResult, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	user, err := s.store.GetUser(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, routeID)
		}
		return nil, storeError("loading user", err)
	}

	record, ok := user.FindRoute(routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRouteNotFound, routeID)
	}

	ratio := s.config.PointsPerTicket()
	if err := s.store.RemoveRoute(ctx, caller.ID, record); err != nil {
		return nil, storeError("removing route", err)
	}

	s.logger.Info("route deleted",
		"user_id", caller.ID,
		"route_id", record.ID,
		"total_points", record.TotalPoints,
	)

	view, err := s.reloadView(ctx, caller.ID, ratio)
	if err != nil {
		return nil, err
	}
	s.refreshViews(ctx)

	return &DeleteResult{
		DeletedPoints: record.TotalPoints,
		View:          view,
	}, nil
}
