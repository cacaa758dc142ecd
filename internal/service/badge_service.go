package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"softspot/internal/featureflags"
	"softspot/internal/middleware"
	"softspot/internal/models"
	"softspot/internal/observability"
	"softspot/internal/repository"

	"gopkg.in/yaml.v3"
)

//go:embed badges.yaml
var badgeDefinitions []byte

// LoadBadges parses a badge definition document.
func LoadBadges(data []byte) ([]models.Badge, error) {
	var doc struct {
		Badges []models.Badge `yaml:"badges"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse badge definitions: %w", err)
	}
	seen := make(map[string]bool, len(doc.Badges))
	for _, b := range doc.Badges {
		if b.ID == "" || b.Criteria.Metric == "" || b.Criteria.Threshold <= 0 {
			return nil, fmt.Errorf("badge %q has incomplete criteria", b.ID)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("badge %q is defined twice", b.ID)
		}
		seen[b.ID] = true
	}
	return doc.Badges, nil
}

// BadgeService awards badges. Earned badges are facts in an append-only
// ledger; nothing is ever revoked.
type BadgeService struct {
	repo        repository.BadgeRepository
	definitions []models.Badge
	notifier    Notifier
	now         func() time.Time
}

// NewBadgeService uses the built-in definitions when defs is nil.
func NewBadgeService(repo repository.BadgeRepository, notifier Notifier, defs []models.Badge) (*BadgeService, error) {
	if defs == nil {
		var err error
		if defs, err = LoadBadges(badgeDefinitions); err != nil {
			return nil, err
		}
	}
	return &BadgeService{repo: repo, definitions: defs, notifier: notifier, now: utcNow}, nil
}

func (s *BadgeService) Definitions() []models.Badge {
	return append([]models.Badge(nil), s.definitions...)
}

// EarnedBadge joins a ledger entry with its definition.
type EarnedBadge struct {
	models.Badge
	MetricValue int64     `json:"metric_value"`
	EarnedAt    time.Time `json:"earned_at"`
}

// Ledger returns the user's earned badges, newest first. Entries whose
// definition was retired are skipped.
func (s *BadgeService) Ledger(ctx context.Context, userID string) ([]EarnedBadge, error) {
	events, err := s.repo.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Badge, len(s.definitions))
	for _, b := range s.definitions {
		byID[b.ID] = b
	}
	out := make([]EarnedBadge, 0, len(events))
	for _, e := range events {
		if b, ok := byID[e.BadgeID]; ok {
			out = append(out, EarnedBadge{Badge: b, MetricValue: e.MetricValue, EarnedAt: e.EarnedAt})
		}
	}
	return out, nil
}

// Evaluate appends a ledger entry for every badge userID now qualifies for
// and has not earned yet, and returns the new entries.
func (s *BadgeService) Evaluate(ctx context.Context, userID string) ([]models.BadgeEvent, error) {
	if userID == "" {
		return nil, models.NewAuthRequiredError()
	}
	metrics, err := s.repo.Metrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.repo.Ledger(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned := make(map[string]bool, len(ledger))
	for _, e := range ledger {
		earned[e.BadgeID] = true
	}

	awarded := []models.BadgeEvent{}
	for _, b := range s.definitions {
		value := metrics[b.Criteria.Metric]
		if earned[b.ID] || value < b.Criteria.Threshold {
			continue
		}
		event := models.BadgeEvent{
			ID:          newID(),
			UserID:      userID,
			BadgeID:     b.ID,
			MetricValue: value,
			EarnedAt:    s.now(),
		}
		appended, err := s.repo.Append(ctx, &event)
		if err != nil {
			return awarded, err
		}
		if !appended {
			// Another evaluation got there first.
			continue
		}
		observability.BadgesAwarded.WithLabelValues(b.ID).Inc()
		middleware.Logger.InfoContext(ctx, "Badge awarded",
			slog.String("user_id", userID),
			slog.String("badge", b.ID),
		)
		notify(ctx, s.notifier, userID, models.NotifyBadge,
			"Badge earned: "+b.Name, b.Description, b.ID)
		awarded = append(awarded, event)
	}
	return awarded, nil
}

// BadgeSink evaluates the author's badges once a new post or comment, or a
// sale, reached the remote store, for users with auto_badges on.
type BadgeSink struct {
	badges *BadgeService
	flags  *featureflags.Manager
}

func NewBadgeSink(badges *BadgeService, flags *featureflags.Manager) *BadgeSink {
	return &BadgeSink{badges: badges, flags: flags}
}

func (s *BadgeSink) Handle(ctx context.Context, e models.OutboxEvent) error {
	userID := badgeSubject(e)
	if userID == "" || !s.flags.Enabled(featureflags.AutoBadges, userID) {
		return nil
	}
	_, err := s.badges.Evaluate(ctx, userID)
	return err
}

// badgeSubject returns the user whose metrics e may have moved, or "".
func badgeSubject(e models.OutboxEvent) string {
	switch {
	case e.Op == models.OpUpsert && (e.Table == models.TablePosts || e.Table == models.TableComments):
		var row struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(e.Payload, &row); err != nil {
			return ""
		}
		return row.UserID

	case e.Op == models.OpUpdate && e.Table == models.TablePosts:
		// MarkSold scopes the update to the owner.
		var values map[string]any
		if err := json.Unmarshal(e.Payload, &values); err != nil || values["sold"] != true {
			return ""
		}
		owner, _ := eventMatch(e)["user_id"].(string)
		return owner
	}
	return ""
}
