package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/storage"
)

// MaxPhotoBytes is the largest photo accepted with a submission
const MaxPhotoBytes = 5 << 20

// Photo is an image attached to a route submission
type Photo struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// RouteInput is a route submission from a member
type RouteInput struct {
	Grade       string
	GradePoints int64
	RouteName   string
	BonusIDs    []string
	Photo       *Photo
}

// SubmitResult is returned after a route is committed
type SubmitResult struct {
	Record        domain.RouteRecord `json:"record"`
	TotalPoints   int64              `json:"total_points"`
	TicketsEarned int64              `json:"tickets_earned"`
	View          *domain.UserView   `json:"view"`
}

// SubmitRoute records a climbed route for the caller and credits its points
func (s *PointsService) SubmitRoute(ctx context.Context, caller *domain.Identity, in RouteInput) (*SubmitResult, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	gradePoints, err := s.gradePoints(in)
	if err != nil {
		return nil, err
	}
	if in.Photo != nil {
		if err := validatePhoto(in.Photo); err != nil {
			return nil, err
		}
	}

	ratio := s.config.PointsPerTicket()
	bonusPoints, bonusDetails, err := s.bonusPoints(in.BonusIDs)
	if err != nil {
		return nil, err
	}
	totalPoints, ok := domain.AddPoints(gradePoints, bonusPoints)
	if !ok || totalPoints < 0 {
		return nil, fmt.Errorf("%w: route points out of range", domain.ErrInvalidRoute)
	}
	now := s.now()

	var photoURL string
	if in.Photo != nil {
		photoURL, err = s.uploadPhoto(ctx, caller.ID, in.Photo, now.UnixMilli())
		if err != nil {
			return nil, err
		}
	}

	routeName := strings.TrimSpace(in.RouteName)
	if routeName == "" {
		routeName = domain.DefaultRouteName
	}

	record := domain.RouteRecord{
		ID:           s.newID(),
		Timestamp:    now.UTC(),
		Grade:        in.Grade,
		RouteName:    routeName,
		GradePoints:  gradePoints,
		BonusPoints:  bonusPoints,
		TotalPoints:  totalPoints,
		BonusDetails: bonusDetails,
		PhotoURL:     photoURL,
		UserID:       caller.ID,
		UserEmail:    caller.Email,
	}

	if err := s.store.AddRoute(ctx, *caller, record); err != nil {
		return nil, storeError("committing route", err)
	}

	s.logger.Info("route submitted",
		"user_id", caller.ID,
		"route_id", record.ID,
		"grade", record.Grade,
		"total_points", totalPoints,
	)

	view, err := s.reloadView(ctx, caller.ID, ratio)
	if err != nil {
		return nil, err
	}
	s.refreshViews(ctx)

	return &SubmitResult{
		Record:        record,
		TotalPoints:   totalPoints,
		TicketsEarned: domain.Tickets(totalPoints, ratio),
		View:          view,
	}, nil
}

// gradePoints prefers the configured grade table over caller-supplied points
func (s *PointsService) gradePoints(in RouteInput) (int64, error) {
	if strings.TrimSpace(in.Grade) == "" {
		return 0, fmt.Errorf("%w: grade is required", domain.ErrInvalidRoute)
	}
	if points, ok := s.config.GradePoints(in.Grade); ok {
		return points, nil
	}
	if in.GradePoints > domain.MaxCustomGradePoints {
		return 0, fmt.Errorf("%w: grade points above %d", domain.ErrInvalidRoute, domain.MaxCustomGradePoints)
	}
	if in.GradePoints > 0 {
		return in.GradePoints, nil
	}
	return 0, fmt.Errorf("%w: unknown grade %q", domain.ErrInvalidRoute, in.Grade)
}

// bonusPoints sums the selected bonus activities. Unknown ids are skipped
// and each id counts once.
func (s *PointsService) bonusPoints(ids []string) (int64, []string, error) {
	var total int64
	details := []string{}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		option, ok := s.config.Bonus(id)
		if !ok {
			continue
		}
		sum, ok := domain.AddPoints(total, option.Points)
		if !ok {
			return 0, nil, fmt.Errorf("%w: bonus points out of range", domain.ErrInvalidRoute)
		}
		total = sum
		details = append(details, option.Label)
	}
	return total, details, nil
}

func validatePhoto(p *Photo) error {
	if p.Size > MaxPhotoBytes {
		return fmt.Errorf("%w: %d bytes", domain.ErrPayloadTooLarge, p.Size)
	}
	if !strings.HasPrefix(strings.ToLower(p.ContentType), "image/") {
		return fmt.Errorf("%w: got %q", domain.ErrInvalidMediaType, p.ContentType)
	}
	return nil
}

func (s *PointsService) uploadPhoto(ctx context.Context, userID string, p *Photo, epochMs int64) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("%w: photo storage is not configured", domain.ErrUploadFailed)
	}

	key := storage.RoutePhotoKey(userID, p.FileName, epochMs)
	url, err := s.blobs.Upload(ctx, key, p.ContentType, p.Size, p.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	return url, nil
}
