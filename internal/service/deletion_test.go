package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/climbing-points/internal/domain"
)

func seededRoutes() []domain.RouteRecord {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.RouteRecord{
		{ID: "r1", Timestamp: ts, Grade: "V2-V3", GradePoints: 3, TotalPoints: 3, BonusDetails: []string{}, UserID: "u1"},
		{ID: "r2", Timestamp: ts.Add(time.Hour), Grade: "V6+", GradePoints: 8, BonusPoints: 1, TotalPoints: 9, BonusDetails: []string{"Helped another member"}, UserID: "u1"},
		{ID: "r3", Timestamp: ts.Add(2 * time.Hour), Grade: "VB-V1", GradePoints: 2, TotalPoints: 2, BonusDetails: []string{}, UserID: "u1"},
	}
}

func TestDeleteRouteReversesSubmission(t *testing.T) {
	store := newMemStore()
	routes := seededRoutes()
	store.seed("u1", "Ann", "ann@example.com", 14, routes...)
	svc := newTestService(t, store, nil)

	res, err := svc.DeleteRoute(context.Background(), member("u1"), "r2")
	if err != nil {
		t.Fatalf("DeleteRoute: %v", err)
	}

	if res.DeletedPoints != 9 {
		t.Errorf("deleted points = %d, want 9", res.DeletedPoints)
	}
	u := store.user(t, "u1")
	if u.Points != 5 {
		t.Errorf("balance = %d, want 14-9", u.Points)
	}
	assertRoutesEqual(t, u.Routes, []domain.RouteRecord{routes[0], routes[2]})
	if res.View.Points != 5 || len(res.View.Routes) != 2 {
		t.Errorf("view = %+v", res.View)
	}
}

func TestDeleteRouteTwiceFails(t *testing.T) {
	store := newMemStore()
	store.seed("u1", "Ann", "ann@example.com", 14, seededRoutes()...)
	svc := newTestService(t, store, nil)

	if _, err := svc.DeleteRoute(context.Background(), member("u1"), "r1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	_, err := svc.DeleteRoute(context.Background(), member("u1"), "r1")
	if !errors.Is(err, domain.ErrRouteNotFound) {
		t.Fatalf("second delete err = %v, want ErrRouteNotFound", err)
	}
	if u := store.user(t, "u1"); u.Points != 11 {
		t.Errorf("balance = %d, want 11 after a single reversal", u.Points)
	}
}

func TestDeleteRouteMayGoNegative(t *testing.T) {
	store := newMemStore()
	routes := seededRoutes()
	// Points from r2 were already spent on a draw.
	store.seed("u1", "Ann", "ann@example.com", 4, routes...)
	svc := newTestService(t, store, nil)

	res, err := svc.DeleteRoute(context.Background(), member("u1"), "r2")
	if err != nil {
		t.Fatalf("DeleteRoute: %v", err)
	}
	if res.View.Points != -5 {
		t.Errorf("balance = %d, want -5", res.View.Points)
	}
	if res.View.Tickets != 0 {
		t.Errorf("tickets = %d, want 0 for a negative balance", res.View.Tickets)
	}
}

func TestDeleteRouteErrors(t *testing.T) {
	store := newMemStore()
	store.seed("u1", "Ann", "ann@example.com", 14, seededRoutes()...)
	svc := newTestService(t, store, nil)

	if _, err := svc.DeleteRoute(context.Background(), nil, "r1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("nil caller err = %v", err)
	}
	if _, err := svc.DeleteRoute(context.Background(), member("u1"), "nope"); !errors.Is(err, domain.ErrRouteNotFound) {
		t.Errorf("unknown route err = %v", err)
	}
	if _, err := svc.DeleteRoute(context.Background(), member("ghost"), "r1"); !errors.Is(err, domain.ErrRouteNotFound) {
		t.Errorf("unknown user err = %v", err)
	}

	store.fail["RemoveRoute"] = errors.New("timeout")
	_, err := svc.DeleteRoute(context.Background(), member("u1"), "r1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("store failure err = %v", err)
	}
	if u := store.user(t, "u1"); u.Points != 14 || len(u.Routes) != 3 {
		t.Errorf("failed delete changed state: %+v", u)
	}
}
