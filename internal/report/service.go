package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nagaralert/nagaralert/internal/store"
)

// Store paths. by_department holds a denormalized copy keyed by sanitized
// department name so dashboards can list a desk without scanning everything.
const (
	reportsPath    = "reports"
	deptIndexPath  = "reports/by_department"
	profilesPath   = "users/whatsapp_profiles"
	registryPath   = "users/registry"
	citizensPath   = "users/citizens"
	draftIndexPath = "users/active_drafts"
	broadcastsPath = "broadcasts"
)

// ErrNoActiveDraft is returned when a sender has no draft inside the window.
var ErrNoActiveDraft = errors.New("report: no active draft for sender")

// draftIndexEntry maps a sender to their most recent draft. It is the fast
// path for "is this sender mid-conversation"; the report document stays the
// source of truth for status and age.
type draftIndexEntry struct {
	ReportID  string    `json:"reportId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service is the persistence adapter for reports, profiles, broadcasts and
// citizen points.
type Service struct {
	log    *slog.Logger
	store  store.Client
	window time.Duration
	now    func() time.Time
}

// NewService builds a report service. window bounds how long drafts stay
// active; zero means the default pending window.
func NewService(log *slog.Logger, st store.Client, window time.Duration) *Service {
	if window <= 0 {
		window = PendingWindow
	}
	return &Service{
		log:    log.With(slog.String("service", "report")),
		store:  st,
		window: window,
		now:    time.Now,
	}
}

// NewID returns a fresh report id.
func NewID() string { return uuid.NewString() }

// Window returns the active-draft window.
func (s *Service) Window() time.Duration { return s.window }

// CreateDraft stores a new draft report and points the sender's draft index
// at it, replacing any previous entry.
func (s *Service) CreateDraft(ctx context.Context, r Report) error {
	if r.ID == "" {
		return errors.New("report: missing id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	if err := s.store.Set(ctx, reportsPath+"/"+r.ID, r); err != nil {
		return fmt.Errorf("create draft %s: %w", r.ID, err)
	}
	if r.SenderID == "" {
		return nil
	}
	entry := draftIndexEntry{ReportID: r.ID, CreatedAt: r.CreatedAt}
	if err := s.store.Set(ctx, draftIndexPath+"/"+SanitizeKey(r.SenderID), entry); err != nil {
		return fmt.Errorf("index draft %s: %w", r.ID, err)
	}
	return nil
}

// Get loads one report by id.
func (s *Service) Get(ctx context.Context, id string) (Report, error) {
	var r Report
	if err := s.store.Get(ctx, reportsPath+"/"+id, &r); err != nil {
		return Report{}, fmt.Errorf("get report %s: %w", id, err)
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}

// Update merges fields into a report. Keys may address nested fields with
// slashes (for example "location/address").
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := s.store.Update(ctx, reportsPath+"/"+id, fields); err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	return nil
}

// Finalize merges the closing fields into the report, mirrors the finished
// document under its department index, and clears the sender's draft index
// when the new status is no longer a draft.
func (s *Service) Finalize(ctx context.Context, id string, status Status, fields map[string]any) (Report, error) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["status"] = status
	if err := s.Update(ctx, id, fields); err != nil {
		return Report{}, err
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	deptPath := deptIndexPath + "/" + SanitizeKey(r.Department) + "/" + id
	if err := s.store.Set(ctx, deptPath, r); err != nil {
		s.log.Warn("mirror report under department failed",
			slog.String("report_id", id),
			slog.String("department", r.Department),
			slog.Any("error", err))
	}
	if !status.Draft() {
		s.clearDraftIndex(ctx, r.SenderID)
	}
	return r, nil
}

// ActiveDraft returns the sender's draft if one exists inside the window.
// A stale or finished index entry yields ErrNoActiveDraft.
func (s *Service) ActiveDraft(ctx context.Context, senderID string) (Report, error) {
	var entry draftIndexEntry
	err := s.store.Get(ctx, draftIndexPath+"/"+SanitizeKey(senderID), &entry)
	if errors.Is(err, store.ErrNotFound) {
		return Report{}, ErrNoActiveDraft
	}
	if err != nil {
		return Report{}, fmt.Errorf("draft index for %s: %w", senderID, err)
	}
	r, err := s.Get(ctx, entry.ReportID)
	if errors.Is(err, store.ErrNotFound) {
		return Report{}, ErrNoActiveDraft
	}
	if err != nil {
		return Report{}, err
	}
	if !r.Active(s.now(), s.window) {
		return Report{}, ErrNoActiveDraft
	}
	return r, nil
}

func (s *Service) clearDraftIndex(ctx context.Context, senderID string) {
	if senderID == "" {
		return
	}
	if err := s.store.Delete(ctx, draftIndexPath+"/"+SanitizeKey(senderID)); err != nil {
		s.log.Warn("clear draft index failed",
			slog.String("sender", senderID), slog.Any("error", err))
	}
}

// All returns every stored report, newest first.
func (s *Service) All(ctx context.Context) ([]Report, error) {
	raw, err := s.store.List(ctx, reportsPath)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return decodeReports(raw)
}

// ByDepartment returns the reports mirrored under one department desk.
func (s *Service) ByDepartment(ctx context.Context, department string) ([]Report, error) {
	raw, err := s.store.List(ctx, deptIndexPath+"/"+SanitizeKey(department))
	if err != nil {
		return nil, fmt.Errorf("list department %s: %w", department, err)
	}
	return decodeReports(raw)
}

// BySender returns a sender's reports, newest first.
func (s *Service) BySender(ctx context.Context, senderID string) ([]Report, error) {
	raw, err := s.store.Query(ctx, reportsPath, "userPhone", senderID)
	if err != nil {
		return nil, fmt.Errorf("query reports by sender: %w", err)
	}
	return decodeReports(raw)
}

func decodeReports(raw map[string]json.RawMessage) ([]Report, error) {
	reports := make([]Report, 0, len(raw))
	for id, doc := range raw {
		var r Report
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", id, err)
		}
		if r.ID == "" {
			r.ID = id
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// Profile loads a sender's chat profile. Missing profiles come back empty.
func (s *Service) Profile(ctx context.Context, senderID string) (UserProfile, error) {
	var p UserProfile
	err := s.store.Get(ctx, profilesPath+"/"+SanitizeKey(senderID), &p)
	if errors.Is(err, store.ErrNotFound) {
		return UserProfile{}, nil
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("get profile %s: %w", senderID, err)
	}
	return p, nil
}

// SaveProfileFields merges fields into a sender's profile.
func (s *Service) SaveProfileFields(ctx context.Context, senderID string, fields map[string]any) error {
	if err := s.store.Update(ctx, profilesPath+"/"+SanitizeKey(senderID), fields); err != nil {
		return fmt.Errorf("save profile %s: %w", senderID, err)
	}
	return nil
}

// Profiles returns every chat profile keyed by sender id.
func (s *Service) Profiles(ctx context.Context) (map[string]UserProfile, error) {
	raw, err := s.store.List(ctx, profilesPath)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	profiles := make(map[string]UserProfile, len(raw))
	for id, doc := range raw {
		var p UserProfile
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
		profiles[id] = p
	}
	return profiles, nil
}

// RegistryUsers returns every account-registration profile keyed by uid.
func (s *Service) RegistryUsers(ctx context.Context) (map[string]RegistryUser, error) {
	raw, err := s.store.List(ctx, registryPath)
	if err != nil {
		return nil, fmt.Errorf("list registry users: %w", err)
	}
	users := make(map[string]RegistryUser, len(raw))
	for id, doc := range raw {
		var u RegistryUser
		if err := json.Unmarshal(doc, &u); err != nil {
			return nil, fmt.Errorf("decode registry user %s: %w", id, err)
		}
		users[id] = u
	}
	return users, nil
}

// AppendBroadcast appends one broadcast history entry and returns its id.
func (s *Service) AppendBroadcast(ctx context.Context, rec BroadcastRecord) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	id, err := s.store.Push(ctx, broadcastsPath, rec)
	if err != nil {
		return "", fmt.Errorf("append broadcast: %w", err)
	}
	return id, nil
}

// Broadcasts returns the broadcast history, newest first.
func (s *Service) Broadcasts(ctx context.Context) ([]BroadcastRecord, error) {
	raw, err := s.store.List(ctx, broadcastsPath)
	if err != nil {
		return nil, fmt.Errorf("list broadcasts: %w", err)
	}
	records := make([]BroadcastRecord, 0, len(raw))
	for id, doc := range raw {
		var rec BroadcastRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("decode broadcast %s: %w", id, err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Levels for the citizen ladder: one level per 50 points.
const pointsPerLevel = 100

// AwardPoints atomically adds points to a citizen's tally, recomputing the
// level. countReport additionally bumps the submitted-reports counter; review
// awards for an already-counted report leave it alone. Returns the updated
// record.
func (s *Service) AwardPoints(ctx context.Context, uid string, points int, countReport bool) (Citizen, error) {
	var updated Citizen
	err := s.store.Transaction(ctx, citizensPath+"/"+SanitizeKey(uid), func(current json.RawMessage) (any, error) {
		var c Citizen
		if len(current) > 0 {
			if err := json.Unmarshal(current, &c); err != nil {
				return nil, fmt.Errorf("decode citizen %s: %w", uid, err)
			}
		}
		if c.JoinedAt.IsZero() {
			c.JoinedAt = s.now()
		}
		c.Points += points
		if countReport {
			c.ReportsCount++
		}
		c.Level = c.Points/pointsPerLevel + 1
		updated = c
		return c, nil
	})
	if err != nil {
		return Citizen{}, fmt.Errorf("award points to %s: %w", uid, err)
	}
	return updated, nil
}

// ExpireStale walks all reports and marks abandoned drafts Expired, clearing
// their index entries. Returns how many were expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	reports, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	expired := 0
	for _, r := range reports {
		if !r.Status.Draft() || now.Sub(r.CreatedAt) < s.window {
			continue
		}
		if err := s.Update(ctx, r.ID, map[string]any{"status": StatusExpired}); err != nil {
			s.log.Warn("expire draft failed",
				slog.String("report_id", r.ID), slog.Any("error", err))
			continue
		}
		s.clearDraftIndex(ctx, r.SenderID)
		expired++
	}
	return expired, nil
}
