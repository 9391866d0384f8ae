// Package streak derives contribution and streak figures from a window of
// recent GitHub activity events.
//
// Both estimators only see the events GitHub returns for a single page, so
// they undercount anything older than that window. They are heuristics, kept
// apart on purpose: the two formulas are not meant to agree.
package streak

import (
	"time"

	"github.com/google/go-github/v74/github"
)

const (
	EventPush        = "PushEvent"
	EventCreate      = "CreateEvent"
	EventPullRequest = "PullRequestEvent"
)

// IsContribution reports whether an event type counts as a contribution.
func IsContribution(eventType string) bool {
	switch eventType {
	case EventPush, EventCreate, EventPullRequest:
		return true
	}
	return false
}

// Contributions keeps the contribution events, preserving order.
func Contributions(events []*github.Event) []*github.Event {
	var out []*github.Event
	for _, e := range events {
		if e != nil && IsContribution(e.GetType()) {
			out = append(out, e)
		}
	}
	return out
}

// DayStreak is the result of EstimateFromRecentDays.
type DayStreak struct {
	RecentContributions int        `json:"recentContributions"`
	LastActivity        *time.Time `json:"lastActivity"`
	CurrentStreak       int        `json:"currentStreak"`
	LongestStreak       int        `json:"longestStreak"`
	TotalContributions  int        `json:"totalContributions"`
}

// EstimateFromRecentDays counts the distinct UTC calendar days with at least
// one push. That count is the current streak; the longest streak is 1.5x it,
// rounded down and never below the current streak.
func EstimateFromRecentDays(events []*github.Event) DayStreak {
	contributions := Contributions(events)

	days := make(map[string]struct{})
	for _, e := range events {
		if e == nil || e.GetType() != EventPush || e.CreatedAt == nil {
			continue
		}
		days[e.GetCreatedAt().UTC().Format(time.DateOnly)] = struct{}{}
	}

	current := len(days)
	return DayStreak{
		RecentContributions: len(contributions),
		LastActivity:        lastCreatedAt(contributions),
		CurrentStreak:       current,
		LongestStreak:       max(current, current*3/2),
		TotalContributions:  len(contributions),
	}
}

// RatioStreak is the result of EstimateFromEventRatio.
type RatioStreak struct {
	Current            int        `json:"current"`
	Longest            int        `json:"longest"`
	TotalContributions int        `json:"total_contributions"`
	LastContribution   *time.Time `json:"last_contribution"`
}

// EstimateFromEventRatio derives streaks from the contribution count n alone:
// current is max(1, n/7) and longest is max(1, n/3), both zero when n is zero.
func EstimateFromEventRatio(events []*github.Event) RatioStreak {
	contributions := Contributions(events)
	n := len(contributions)

	out := RatioStreak{
		TotalContributions: n,
		LastContribution:   lastCreatedAt(contributions),
	}
	if n > 0 {
		out.Current = max(1, n/7)
		out.Longest = max(1, n/3)
	}
	return out
}

// lastCreatedAt returns the timestamp of the first event; GitHub lists
// events newest first.
func lastCreatedAt(events []*github.Event) *time.Time {
	if len(events) == 0 || events[0].CreatedAt == nil {
		return nil
	}
	t := events[0].GetCreatedAt().Time
	return &t
}
