//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
	"dinemate/pkg/platform/sentinel"
	"dinemate/pkg/testutil/containers"
)

type PostgresSignalStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresSignalStore

	userID  id.UserID
	groupID id.GroupID
}

func TestPostgresSignalStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresSignalStoreSuite))
}

func (s *PostgresSignalStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.ApplyMigrations(s.T(), "../../../migrations")
	s.store = NewPostgresSignalStore(s.pg.DB)
}

func (s *PostgresSignalStoreSuite) TearDownSuite() {
	s.pg.Terminate(s.T())
}

func (s *PostgresSignalStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE preference_signals, group_members, chat_messages, groups, users CASCADE`)
	s.Require().NoError(err)

	s.userID = id.NewUserID()
	s.groupID = id.NewGroupID()

	_, err = s.pg.DB.Exec(
		`INSERT INTO users (id, email, display_name, password_hash) VALUES ($1, $2, 'Alice', 'x')`,
		uuid.UUID(s.userID), uuid.NewString()+"@example.com")
	s.Require().NoError(err)
	_, err = s.pg.DB.Exec(
		`INSERT INTO groups (id, name, invite_code, creator_id) VALUES ($1, 'Dinner', $2, $3)`,
		uuid.UUID(s.groupID), uuid.NewString()[:6], uuid.UUID(s.userID))
	s.Require().NoError(err)
}

func (s *PostgresSignalStoreSuite) signal(dimension models.Dimension, value string, observedAt time.Time) *models.Signal {
	signal, err := models.NewSignal(
		id.NewSignalID(), s.userID, s.groupID,
		dimension, value, models.PolarityPositive, 0.8,
		id.MessageID{}, observedAt,
	)
	s.Require().NoError(err)
	return signal
}

func (s *PostgresSignalStoreSuite) TestRecordAndListFor() {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	later := s.signal(models.DimensionCuisine, "thai", base.Add(time.Hour))
	earlier := s.signal(models.DimensionCuisine, "sushi", base)
	other := s.signal(models.DimensionAmbience, "quiet", base)

	for _, sig := range []*models.Signal{later, earlier, other} {
		s.Require().NoError(s.store.Record(ctx, sig))
	}

	listed, err := s.store.ListFor(ctx, s.userID, s.groupID, models.DimensionCuisine)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("sushi", listed[0].Value, "history is ordered by observed_at")
	s.Equal("thai", listed[1].Value)
	s.True(listed[0].ObservedAt.Equal(base))
}

func (s *PostgresSignalStoreSuite) TestDuplicateIDIsConflict() {
	ctx := context.Background()
	signal := s.signal(models.DimensionCuisine, "thai", time.Now().UTC())

	s.Require().NoError(s.store.Record(ctx, signal))
	s.ErrorIs(s.store.Record(ctx, signal), sentinel.ErrConflict)
}

func (s *PostgresSignalStoreSuite) TestListForGroupSpansUsersAndDimensions() {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	bob := id.NewUserID()
	_, err := s.pg.DB.Exec(
		`INSERT INTO users (id, email, display_name, password_hash) VALUES ($1, $2, 'Bob', 'x')`,
		uuid.UUID(bob), uuid.NewString()+"@example.com")
	s.Require().NoError(err)

	s.Require().NoError(s.store.Record(ctx, s.signal(models.DimensionCuisine, "thai", base.Add(time.Minute))))

	bobSignal, err := models.NewSignal(
		id.NewSignalID(), bob, s.groupID,
		models.DimensionBudgetTier, "2", models.PolarityPositive, 0.9,
		id.MessageID{}, base,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Record(ctx, bobSignal))

	listed, err := s.store.ListForGroup(ctx, s.groupID)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal("2", listed[0].Value, "group history is ordered by observed_at across users")
	s.Equal("thai", listed[1].Value)
}
