package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/service"
)

func TestDecode(t *testing.T) {
	value := []byte(`{
		"user_id": "u1",
		"display_name": "Ann",
		"email": "ann@example.com",
		"provider": "google.com",
		"grade": "V4-V5",
		"route_name": "Arete",
		"bonus_ids": ["clean", "help"]
	}`)

	identity, input, err := Decode(value)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if identity.ID != "u1" || identity.DisplayName != "Ann" || identity.Provider != domain.ProviderGoogle {
		t.Errorf("identity = %+v", identity)
	}
	if input.Grade != "V4-V5" || input.RouteName != "Arete" || len(input.BonusIDs) != 2 {
		t.Errorf("input = %+v", input)
	}
	if input.Photo != nil {
		t.Error("kiosk submissions carry no photo")
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := map[string]string{
		"malformed":        `{"user_id":`,
		"missing user":     `{"grade":"V2-V3"}`,
		"missing grade":    `{"user_id":"u1"}`,
		"unknown provider": `{"user_id":"u1","grade":"V2-V3","provider":"myspace"}`,
		"negative points":  `{"user_id":"u1","grade":"custom","grade_points":-5}`,
		"points above cap": `{"user_id":"u1","grade":"custom","grade_points":9223372036854775807}`,
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode([]byte(value)); !errors.Is(err, errInvalidMessage) {
				t.Errorf("err = %v, want errInvalidMessage", err)
			}
		})
	}
}

type fakeSubmitter struct {
	calls []string
	fail  map[string]error
}

func (f *fakeSubmitter) SubmitRoute(_ context.Context, caller *domain.Identity, in service.RouteInput) (*service.SubmitResult, error) {
	f.calls = append(f.calls, caller.ID)
	if err := f.fail[caller.ID]; err != nil {
		return nil, err
	}
	return &service.SubmitResult{
		Record:      domain.RouteRecord{ID: "r-" + caller.ID, Grade: in.Grade},
		TotalPoints: 3,
	}, nil
}

func TestSubmitBatchKeepsOrderAndSkipsFailures(t *testing.T) {
	submitter := &fakeSubmitter{fail: map[string]error{"u2": domain.ErrInvalidRoute}}
	c := &Consumer{
		config:    &config.KafkaConfig{BatchSize: 10},
		submitter: submitter,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	batch := []pendingRoute{
		{identity: &domain.Identity{ID: "u1"}, input: service.RouteInput{Grade: "V2-V3"}},
		{identity: &domain.Identity{ID: "u2"}, input: service.RouteInput{Grade: "bogus"}},
		{identity: &domain.Identity{ID: "u3"}, input: service.RouteInput{Grade: "V6+"}},
	}
	committed := c.submitBatch(context.Background(), batch)

	if committed != 2 {
		t.Errorf("committed = %d, want 2", committed)
	}
	want := []string{"u1", "u2", "u3"}
	for i := range want {
		if submitter.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", submitter.calls, want)
		}
	}
}
