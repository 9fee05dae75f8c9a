package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/requestcontext"
)

// seedConfidence ranks stored defaults below anything the member actually
// said in the group.
const seedConfidence = 0.5

// seedNamespace derives deterministic signal IDs for seeded defaults, so a
// member who leaves and rejoins does not duplicate their seed history.
var seedNamespace = uuid.MustParse("6f7c2d8e-41b5-4a09-9c3d-fe82a07d5513")

// DefaultsSource returns a user's stored default preferences. Implemented
// by the user service.
type DefaultsSource interface {
	DefaultPreferences(ctx context.Context, userID id.UserID) (dietary, cuisines []string, err error)
}

// Seeder records a member's default preferences as low-confidence signals
// when they join a group. Seeds are ordinary signals: later statements in
// chat outrank them through recency and confidence, never through special
// casing.
type Seeder struct {
	defaults DefaultsSource
	recorder *Service
	logger   *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(defaults DefaultsSource, recorder *Service, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{defaults: defaults, recorder: recorder, logger: logger}
}

// SeedDefaults records the user's default dietary restrictions and cuisine
// preferences into the group. Already-seeded values are skipped.
func (s *Seeder) SeedDefaults(ctx context.Context, userID id.UserID, groupID id.GroupID) error {
	dietary, cuisines, err := s.defaults.DefaultPreferences(ctx, userID)
	if err != nil {
		return fmt.Errorf("load default preferences: %w", err)
	}

	seeded := 0
	record := func(dimension models.Dimension, value string) error {
		signal, err := models.NewSignal(
			seedSignalID(userID, groupID, dimension, value),
			userID, groupID,
			dimension, value,
			models.PolarityPositive, seedConfidence,
			id.MessageID{}, requestcontext.Now(ctx),
		)
		if err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, signal); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				return nil
			}
			return err
		}
		seeded++
		return nil
	}

	for _, value := range dietary {
		if err := record(models.DimensionDietaryRestriction, value); err != nil {
			return err
		}
	}
	for _, value := range cuisines {
		if err := record(models.DimensionCuisine, value); err != nil {
			return err
		}
	}

	if seeded > 0 {
		s.logger.InfoContext(ctx, "default preferences seeded",
			"user_id", userID, "group_id", groupID, "seeded", seeded)
	}
	return nil
}

func seedSignalID(userID id.UserID, groupID id.GroupID, dimension models.Dimension, value string) id.SignalID {
	seed := userID.String() + "|" + groupID.String() + "|" + string(dimension) + "|" + value
	return id.SignalID(uuid.NewSHA1(seedNamespace, []byte(seed)))
}
