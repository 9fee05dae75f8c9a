package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dinemate/internal/group/models"
	"dinemate/internal/group/store/mocks"
	id "dinemate/pkg/domain"
	dErrors "dinemate/pkg/domain-errors"
	"dinemate/pkg/platform/sentinel"
)

// StoreFaultSuite drives the service against failing stores. The in-memory
// stores used elsewhere cannot produce these paths.
type StoreFaultSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	groups   *mocks.MockGroupStore
	messages *mocks.MockMessageStore
	service  *Service
	ctx      context.Context
	caller   id.UserID
}

func TestStoreFaultSuite(t *testing.T) {
	suite.Run(t, new(StoreFaultSuite))
}

func (s *StoreFaultSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.groups = mocks.NewMockGroupStore(s.ctrl)
	s.messages = mocks.NewMockMessageStore(s.ctrl)
	s.caller = id.NewUserID()
	s.ctx = context.Background()

	svc, err := New(s.groups, s.messages,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.service = svc
}

func (s *StoreFaultSuite) TestCreateRetriesInviteCodeCollision() {
	var codes []string
	capture := func(_ context.Context, group *models.Group) error {
		codes = append(codes, group.InviteCode)
		return nil
	}

	gomock.InOrder(
		s.groups.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict),
		s.groups.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(capture),
	)
	s.groups.EXPECT().AddMember(gomock.Any(), gomock.Any(), s.caller).Return(nil)
	s.messages.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.groups.EXPECT().TouchMessageStats(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	group, err := s.service.Create(s.ctx, "Friday dinner", "", s.caller)
	s.Require().NoError(err)
	s.Require().Len(codes, 1)
	s.Equal(codes[0], group.InviteCode, "the retried code is the one returned")
}

func (s *StoreFaultSuite) TestCreateGivesUpAfterRepeatedCollisions() {
	s.groups.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(sentinel.ErrConflict).Times(inviteCodeRetries)

	_, err := s.service.Create(s.ctx, "Friday dinner", "", s.caller)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFaultSuite) TestCreateSurvivesDroppedSystemMessage() {
	s.groups.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.groups.EXPECT().AddMember(gomock.Any(), gomock.Any(), s.caller).Return(nil)
	s.messages.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	group, err := s.service.Create(s.ctx, "Friday dinner", "", s.caller)
	s.Require().NoError(err, "narration failures must not abort creation")
	s.NotNil(group)
}

func (s *StoreFaultSuite) TestJoinMemberLookupFailureIsInternal() {
	group := &models.Group{
		ID:         id.NewGroupID(),
		Name:       "Friday dinner",
		InviteCode: "ABC123",
		Status:     models.GroupStatusActive,
	}
	s.groups.EXPECT().FindByInviteCode(gomock.Any(), "ABC123").Return(group, nil)
	s.groups.EXPECT().ListMembers(gomock.Any(), group.ID).
		Return(nil, errors.New("connection reset"))

	_, err := s.service.Join(s.ctx, "ABC123", s.caller)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFaultSuite) TestSendMessageAppendFailureIsInternal() {
	group := &models.Group{
		ID:     id.NewGroupID(),
		Name:   "Friday dinner",
		Status: models.GroupStatusActive,
	}
	s.groups.EXPECT().FindByID(gomock.Any(), group.ID).Return(group, nil)
	s.groups.EXPECT().ListMembers(gomock.Any(), group.ID).
		Return([]id.UserID{s.caller}, nil)
	s.messages.EXPECT().Append(gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset"))

	_, err := s.service.SendMessage(s.ctx, group.ID, s.caller, models.MessageTypeText, "thai?")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *StoreFaultSuite) TestSelectRestaurantUpdateFailureIsInternal() {
	group := &models.Group{
		ID:     id.NewGroupID(),
		Name:   "Friday dinner",
		Status: models.GroupStatusActive,
	}
	s.groups.EXPECT().FindByID(gomock.Any(), group.ID).Return(group, nil)
	s.groups.EXPECT().ListMembers(gomock.Any(), group.ID).
		Return([]id.UserID{s.caller}, nil)
	s.groups.EXPECT().Update(gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset"))

	_, err := s.service.SelectRestaurant(s.ctx, group.ID, s.caller, "Thai Basil")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
