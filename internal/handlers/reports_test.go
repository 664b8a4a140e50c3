package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/nagaralert/nagaralert/internal/report"
	"github.com/nagaralert/nagaralert/internal/store"
)

func newReportsFixture(t *testing.T) (*echo.Echo, *report.Service) {
	t.Helper()
	reports := report.NewService(slog.Default(), store.NewMemory(), 0)
	h := NewReportsHandler(slog.Default(), reports, nil, nil)
	e := echo.New()
	h.Register(e)
	return e, reports
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateReport(t *testing.T) {
	t.Parallel()
	e, reports := newReportsFixture(t)

	rec := doJSON(e, http.MethodPost, "/api/reports", `{
		"type": "Garbage Pile",
		"department": "Municipal",
		"userPhone": "888",
		"address": "Lalpur, Ranchi",
		"lat": 23.36, "lng": 85.33
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	var created report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != report.StatusPendingReview {
		t.Fatalf("created = %+v", created)
	}
	if created.Location == nil || created.Location.Address != "Lalpur, Ranchi" {
		t.Fatalf("location = %+v", created.Location)
	}

	byDept, err := reports.ByDepartment(context.Background(), "Municipal")
	if err != nil || len(byDept) != 1 {
		t.Fatalf("department mirror: %v %d", err, len(byDept))
	}
}

func TestCreateReport_RequiresType(t *testing.T) {
	t.Parallel()
	e, _ := newReportsFixture(t)

	rec := doJSON(e, http.MethodPost, "/api/reports", `{"description": "no type"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestGetReport_NotFound(t *testing.T) {
	t.Parallel()
	e, _ := newReportsFixture(t)

	rec := doJSON(e, http.MethodGet, "/api/reports/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	e, reports := newReportsFixture(t)
	ctx := context.Background()

	r := report.Report{
		ID:         report.NewID(),
		SenderID:   "999",
		IssueType:  "Pothole",
		Department: "Municipal",
		Status:     report.StatusPendingReview,
	}
	if err := reports.CreateDraft(ctx, r); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodPatch, "/api/reports/"+r.ID+"/status", `{"status": "Resolved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	got, err := reports.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != report.StatusResolved {
		t.Fatalf("status = %s", got.Status)
	}

	// Resolution pays the top gamification award without recounting the report.
	citizen, err := reports.AwardPoints(ctx, "999", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if citizen.Points != resolvedPoints || citizen.ReportsCount != 0 {
		t.Fatalf("citizen = %+v", citizen)
	}
	if citizen.Level != 2 {
		t.Fatalf("level = %d, want 2 at %d points", citizen.Level, resolvedPoints)
	}
}

func TestUpdateStatus_AcceptedAwardsPoints(t *testing.T) {
	t.Parallel()
	e, reports := newReportsFixture(t)
	ctx := context.Background()

	r := report.Report{
		ID:       report.NewID(),
		SenderID: "998",
		Status:   report.StatusPendingReview,
	}
	if err := reports.CreateDraft(ctx, r); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodPatch, "/api/reports/"+r.ID+"/status", `{"status": "Accepted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body.String())
	}
	citizen, err := reports.AwardPoints(ctx, "998", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if citizen.Points != acceptedPoints {
		t.Fatalf("points = %d, want %d", citizen.Points, acceptedPoints)
	}
}

func TestUpdateStatus_RejectedAwardsNothing(t *testing.T) {
	t.Parallel()
	e, reports := newReportsFixture(t)
	ctx := context.Background()

	r := report.Report{
		ID:       report.NewID(),
		SenderID: "997",
		Status:   report.StatusPendingReview,
	}
	if err := reports.CreateDraft(ctx, r); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(e, http.MethodPatch, "/api/reports/"+r.ID+"/status", `{"status": "Rejected"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	citizen, err := reports.AwardPoints(ctx, "997", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if citizen.Points != 0 {
		t.Fatalf("points = %d, want 0", citizen.Points)
	}
}

func TestUpdateStatus_RejectsUnknown(t *testing.T) {
	t.Parallel()
	e, _ := newReportsFixture(t)

	rec := doJSON(e, http.MethodPatch, "/api/reports/x/status", `{"status": "Vanished"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestNearbyReports(t *testing.T) {
	t.Parallel()
	e, reports := newReportsFixture(t)
	ctx := context.Background()

	near := report.Report{ID: report.NewID(), Status: report.StatusVerified,
		Location: &report.Location{Lat: 23.35, Lng: 85.31}}
	far := report.Report{ID: report.NewID(), Status: report.StatusVerified,
		Location: &report.Location{Lat: 28.61, Lng: 77.21}}
	for _, r := range []report.Report{near, far} {
		if err := reports.CreateDraft(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	rec := doJSON(e, http.MethodGet, "/api/reports/nearby?lat=23.3441&lng=85.3096&radius_km=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got []report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != near.ID {
		t.Fatalf("nearby = %+v", got)
	}
}

func TestNearbyReports_RequiresCoordinates(t *testing.T) {
	t.Parallel()
	e, _ := newReportsFixture(t)

	rec := doJSON(e, http.MethodGet, "/api/reports/nearby", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
}
