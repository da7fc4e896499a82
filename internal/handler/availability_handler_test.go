package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/schedly/internal/availability"
	"github.com/hitoshi/schedly/internal/model"
)

// --- モック ---

type mockAvailabilityService struct {
	getFn    func(ctx context.Context, userID string) (*model.Availability, error)
	createFn func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error)
	updateFn func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error)
	deleteFn func(ctx context.Context, userID string) error
	slotsFn  func(ctx context.Context, userID string, duration int) ([]availability.DaySlots, error)
}

func (m *mockAvailabilityService) Get(ctx context.Context, userID string) (*model.Availability, error) {
	return m.getFn(ctx, userID)
}

func (m *mockAvailabilityService) Create(ctx context.Context, userID string, in availability.Input) (*model.Availability, error) {
	return m.createFn(ctx, userID, in)
}

func (m *mockAvailabilityService) Update(ctx context.Context, userID string, in availability.Input) (*model.Availability, error) {
	return m.updateFn(ctx, userID, in)
}

func (m *mockAvailabilityService) Delete(ctx context.Context, userID string) error {
	return m.deleteFn(ctx, userID)
}

func (m *mockAvailabilityService) GenerateSlots(ctx context.Context, userID string, duration int) ([]availability.DaySlots, error) {
	return m.slotsFn(ctx, userID, duration)
}

// --- テスト ---

// TestAvailabilityHandler_Slots は枠のJSON形式とdurationの扱いを検証する。
func TestAvailabilityHandler_Slots(t *testing.T) {
	var gotDuration int
	svc := &mockAvailabilityService{
		slotsFn: func(ctx context.Context, userID string, duration int) ([]availability.DaySlots, error) {
			gotDuration = duration
			if duration <= 0 {
				return nil, model.NewInvalidDurationError(duration)
			}
			return []availability.DaySlots{{
				Date:  time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
				Slots: []model.TimeOfDay{9 * 60, 9*60 + 40},
			}}, nil
		},
	}
	h := NewAvailabilityHandler(svc)

	tests := []struct {
		name         string
		query        string
		wantStatus   int
		wantDuration int
	}{
		{"既定値", "", http.StatusOK, 30},
		{"指定値", "?duration=45", http.StatusOK, 45},
		{"0分", "?duration=0", http.StatusBadRequest, 0},
		{"数値以外", "?duration=abc", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDuration = -1
			req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/users/user-1/slots"+tt.query, nil), "id", "user-1")
			w := httptest.NewRecorder()
			h.Slots(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotDuration != tt.wantDuration {
				t.Errorf("duration = %d, want %d", gotDuration, tt.wantDuration)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp []daySlotsResponse
			decodeBody(t, w, &resp)
			if len(resp) != 1 || resp[0].Date != "2026-10-19" {
				t.Fatalf("resp = %+v", resp)
			}
			if len(resp[0].Slots) != 2 || resp[0].Slots[0].Time != "09:00" || resp[0].Slots[1].Time != "09:40" {
				t.Errorf("slots = %+v", resp[0].Slots)
			}
		})
	}
}

// TestAvailabilityHandler_Create は入力の変換とステータスを検証する。
func TestAvailabilityHandler_Create(t *testing.T) {
	var got availability.Input
	svc := &mockAvailabilityService{
		createFn: func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error) {
			got = in
			return &model.Availability{
				ID:         "av-1",
				UserID:     userID,
				GapMinutes: in.GapMinutes,
				Days:       []model.DayAvailability{{Day: model.Monday, Start: 9 * 60, End: 12 * 60}},
			}, nil
		},
	}
	h := NewAvailabilityHandler(svc)

	body := `{"timeGap":10,"days":[{"day":"MONDAY","startTime":"09:00","endTime":"12:00"}]}`
	w := httptest.NewRecorder()
	h.Create(w, withUserID(newJSONRequest(http.MethodPost, "/api/availability", body), "user-1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.GapMinutes != 10 || len(got.Days) != 1 || got.Days[0] != (availability.WindowInput{Day: "MONDAY", Start: "09:00", End: "12:00"}) {
		t.Errorf("input = %+v", got)
	}
	var resp availabilityResponse
	decodeBody(t, w, &resp)
	if resp.Days[0].Start != "09:00" || resp.Days[0].End != "12:00" {
		t.Errorf("days = %+v", resp.Days)
	}
}

// TestAvailabilityHandler_Errors はサービスエラーのステータス変換を検証する。
func TestAvailabilityHandler_Errors(t *testing.T) {
	svc := &mockAvailabilityService{
		getFn: func(ctx context.Context, userID string) (*model.Availability, error) {
			return nil, model.NewAvailabilityNotFoundError()
		},
		createFn: func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error) {
			return nil, model.NewAvailabilityExistsError()
		},
		updateFn: func(ctx context.Context, userID string, in availability.Input) (*model.Availability, error) {
			return nil, model.NewInvalidAvailabilityError("開始時刻は終了時刻より前にしてください")
		},
		deleteFn: func(ctx context.Context, userID string) error { return nil },
	}
	h := NewAvailabilityHandler(svc)

	w := httptest.NewRecorder()
	h.GetMine(w, withUserID(httptest.NewRequest(http.MethodGet, "/api/availability", nil), "user-1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("get status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = httptest.NewRecorder()
	h.Create(w, withUserID(newJSONRequest(http.MethodPost, "/api/availability", `{"days":[]}`), "user-1"))
	if w.Code != http.StatusConflict {
		t.Errorf("create status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = httptest.NewRecorder()
	h.Update(w, withUserID(newJSONRequest(http.MethodPut, "/api/availability", `{"days":[]}`), "user-1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("update status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = httptest.NewRecorder()
	h.Delete(w, withUserID(httptest.NewRequest(http.MethodDelete, "/api/availability", nil), "user-1"))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
