package attendance

import (
	"context"
	"fmt"
	"sort"

	"attendx/internal/model"
	"attendx/internal/store"
)

// Aggregator derives per-student attendance percentages and eligibility
// flags from the stored sessions and records. Nothing it computes is stored.
type Aggregator struct {
	sessions store.SessionStore
	records  store.RecordStore
}

// NewAggregator wires an aggregator over the two stores.
func NewAggregator(sessions store.SessionStore, records store.RecordStore) *Aggregator {
	return &Aggregator{sessions: sessions, records: records}
}

// CourseStats computes stats for every student ever recorded in the course,
// sorted by percentage descending. Ties keep encounter order.
func (a *Aggregator) CourseStats(ctx context.Context, courseID string) ([]model.StudentStats, error) {
	courseSessions, err := a.courseSessions(ctx, courseID)
	if err != nil {
		return nil, err
	}
	courseRecords, err := a.recordsIn(ctx, courseSessions)
	if err != nil {
		return nil, err
	}

	type group struct {
		name  string
		count int
	}
	groups := make(map[string]*group)
	var order []string
	for _, r := range courseRecords {
		g, ok := groups[r.MatricNo]
		if !ok {
			// First occurrence wins the representative name.
			g = &group{name: r.StudentName}
			groups[r.MatricNo] = g
			order = append(order, r.MatricNo)
		}
		g.count++
	}

	stats := make([]model.StudentStats, 0, len(order))
	for _, matric := range order {
		g := groups[matric]
		stats = append(stats, makeStats(matric, g.name, g.count, len(courseSessions)))
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Percentage > stats[j].Percentage
	})
	return stats, nil
}

// SessionStats computes the same figures restricted to the roster of one
// session's attendees, against that session's course history.
func (a *Aggregator) SessionStats(ctx context.Context, sessionID string) ([]model.StudentStats, error) {
	sess, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	courseSessions, err := a.courseSessions(ctx, sess.CourseID)
	if err != nil {
		return nil, err
	}
	courseRecords, err := a.recordsIn(ctx, courseSessions)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range courseRecords {
		counts[r.MatricNo]++
	}

	roster, err := a.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	stats := make([]model.StudentStats, 0, len(roster))
	for _, r := range roster {
		stats = append(stats, makeStats(r.MatricNo, r.StudentName, counts[r.MatricNo], len(courseSessions)))
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Percentage > stats[j].Percentage
	})
	return stats, nil
}

func (a *Aggregator) courseSessions(ctx context.Context, courseID string) (map[string]bool, error) {
	all, err := a.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := make(map[string]bool)
	for _, s := range all {
		if s.CourseID == courseID {
			ids[s.ID] = true
		}
	}
	return ids, nil
}

func (a *Aggregator) recordsIn(ctx context.Context, sessionIDs map[string]bool) ([]model.AttendanceRecord, error) {
	all, err := a.records.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var out []model.AttendanceRecord
	for _, r := range all {
		if sessionIDs[r.SessionID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// makeStats computes one row. A course with no sessions yields exactly 0.0,
// never a division fault.
func makeStats(matric, name string, attended, total int) model.StudentStats {
	pct := 0.0
	if total > 0 {
		pct = float64(attended) / float64(total) * 100
	}
	return model.StudentStats{
		MatricNo:         matric,
		Name:             name,
		SessionsAttended: attended,
		TotalSessions:    total,
		Percentage:       pct,
		Eligible:         pct >= model.EligibilityThreshold,
	}
}
