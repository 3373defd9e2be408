package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/suite"

	"agency-backend/internal/apperr"
	"agency-backend/internal/models"
	"agency-backend/internal/store"
	"agency-backend/internal/testutil"
)

type serviceSuite struct {
	suite.Suite
	ctx      context.Context
	db       *testutil.DB
	gw       *testutil.Gateway
	notifier *testutil.Notifier
	svc      *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(serviceSuite))
}

func (s *serviceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewDB()
	s.gw = testutil.NewGateway()
	s.notifier = &testutil.Notifier{}
	s.svc = NewService(s.db.Users(), s.db.RefreshTokens(), s.db.Intents(), s.gw, s.notifier, testTokens())
}

func (s *serviceSuite) registerInput() RegisterInput {
	return RegisterInput{
		Email:     strings.ToLower(gofakeit.Email()),
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Password:  "Str0ng!Pass",
		Phone:     "+33612345678",
	}
}

func (s *serviceSuite) register() (*Session, RegisterInput) {
	in := s.registerInput()
	session, err := s.svc.Register(s.ctx, in)
	s.Require().NoError(err)
	return session, in
}

func storeRole(role models.Role) store.UserUpdate {
	return store.UserUpdate{Role: &role}
}

func (s *serviceSuite) status(err error) int {
	s.Require().Error(err)
	return apperr.Status(err)
}

func (s *serviceSuite) TestRegisterCreatesCustomerAndSession() {
	session, in := s.register()

	s.NotEmpty(session.AccessToken)
	s.NotEmpty(session.RefreshToken)
	s.Equal(int64(900), session.ExpiresIn)
	s.Equal(models.RoleUser, session.User.Role)
	s.Require().NotNil(session.User.StripeCustomerID)

	stored, err := s.db.Users().GetByID(s.ctx, session.User.ID)
	s.Require().NoError(err)
	s.Equal(*session.User.StripeCustomerID, *stored.StripeCustomerID)
	s.NotEqual(in.Password, stored.PasswordHash)

	intents := s.db.Intents().ByEmail(stored.Email)
	s.Require().Len(intents, 1)
	s.Equal(models.IntentCompleted, intents[0].Status)
	s.Equal(CustomerIdempotencyKey(intents[0].ID), s.gw.Customers[0].IdempotencyKey)
	s.Equal(stored.ID.Hex(), s.gw.Customers[0].UserID)

	s.Equal(1, s.notifier.Count("verification"))
}

func (s *serviceSuite) TestRegisterNeverExposesPassword() {
	session, in := s.register()

	body, err := json.Marshal(session)
	s.Require().NoError(err)
	s.NotContains(string(body), in.Password)
	s.NotContains(string(body), "$2a$")
	s.NotContains(string(body), `"password"`)
}

func (s *serviceSuite) TestRegisterNormalizesEmail() {
	in := s.registerInput()
	in.Email = "  Jane.Doe@Example.COM "
	session, err := s.svc.Register(s.ctx, in)
	s.Require().NoError(err)
	s.Equal("jane.doe@example.com", session.User.Email)

	in.Email = "jane.doe@example.com"
	_, err = s.svc.Register(s.ctx, in)
	s.Equal(http.StatusConflict, s.status(err))
}

func (s *serviceSuite) TestRegisterCompensatesWhenCustomerCreationFails() {
	s.gw.CustomerErr = errors.New("stripe down")
	in := s.registerInput()

	_, err := s.svc.Register(s.ctx, in)
	s.Equal(http.StatusBadGateway, s.status(err))

	_, err = s.db.Users().GetByEmail(s.ctx, in.Email)
	s.Error(err, "user must be removed by compensation")

	intents := s.db.Intents().ByEmail(in.Email)
	s.Require().Len(intents, 1)
	s.Equal(models.IntentCompensated, intents[0].Status)
	s.Contains(intents[0].LastError, "stripe down")
	s.Zero(s.notifier.Count("verification"))

	// The email is free again once the gateway recovers.
	s.gw.CustomerErr = nil
	_, err = s.svc.Register(s.ctx, in)
	s.NoError(err)
}

func (s *serviceSuite) TestRegisterCompensatesAfterRequestDeadline() {
	s.gw.CustomerHangs = true
	in := s.registerInput()

	ctx, cancel := context.WithTimeout(s.ctx, 50*time.Millisecond)
	defer cancel()
	_, err := s.svc.Register(ctx, in)
	s.Equal(http.StatusBadGateway, s.status(err))
	s.ErrorIs(err, context.DeadlineExceeded)

	_, err = s.db.Users().GetByEmail(s.ctx, in.Email)
	s.ErrorIs(err, store.ErrNotFound)

	intents := s.db.Intents().ByEmail(in.Email)
	s.Require().Len(intents, 1)
	s.Equal(models.IntentCompensated, intents[0].Status)
	s.Contains(intents[0].LastError, "deadline exceeded")
}

func (s *serviceSuite) TestRegisterSurvivesVerificationMailFailure() {
	s.notifier.Err = errors.New("smtp down")
	_, err := s.svc.Register(s.ctx, s.registerInput())
	s.NoError(err)
}

func (s *serviceSuite) TestLoginFailuresLookIdentical() {
	_, in := s.register()

	_, unknownErr := s.svc.Login(s.ctx, "nobody@example.com", in.Password)
	_, wrongErr := s.svc.Login(s.ctx, in.Email, "wrong-password")

	s.Equal(http.StatusUnauthorized, s.status(unknownErr))
	s.Equal(http.StatusUnauthorized, s.status(wrongErr))
	s.Equal(unknownErr.Error(), wrongErr.Error())
}

func (s *serviceSuite) TestLoginDisabledAccount() {
	session, in := s.register()
	_, err := s.db.Users().Update(s.ctx, session.User.ID, storeRole(models.RoleDisabled))
	s.Require().NoError(err)

	_, err = s.svc.Login(s.ctx, in.Email, in.Password)
	s.Equal(http.StatusForbidden, s.status(err))

	// A wrong password on a disabled account still reads as bad credentials.
	_, err = s.svc.Login(s.ctx, in.Email, "wrong-password")
	s.Equal(http.StatusUnauthorized, s.status(err))
}

func (s *serviceSuite) TestRefreshRotatesToken() {
	first, _ := s.register()

	second, err := s.svc.Refresh(s.ctx, first.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(first.RefreshToken, second.RefreshToken)

	_, err = s.svc.Refresh(s.ctx, first.RefreshToken)
	s.Equal(http.StatusUnauthorized, s.status(err))

	_, err = s.svc.Refresh(s.ctx, second.RefreshToken)
	s.NoError(err)

	var revoked int
	for _, token := range s.db.RefreshTokens().All() {
		if token.Revoked {
			revoked++
			s.NotNil(token.ReplacedByToken)
		}
	}
	s.Equal(2, revoked)
}

func (s *serviceSuite) TestRefreshRejections() {
	session, _ := s.register()

	_, err := s.svc.Refresh(s.ctx, "  ")
	s.Equal(http.StatusBadRequest, s.status(err))

	_, err = s.svc.Refresh(s.ctx, session.AccessToken)
	s.Equal(http.StatusUnauthorized, s.status(err))

	s.Require().NoError(s.db.Users().Delete(s.ctx, session.User.ID))
	_, err = s.svc.Refresh(s.ctx, session.RefreshToken)
	s.Equal(http.StatusForbidden, s.status(err))
}

func (s *serviceSuite) TestLogoutRevokesRefreshToken() {
	session, _ := s.register()

	s.Require().NoError(s.svc.Logout(s.ctx, session.RefreshToken))

	_, err := s.svc.Refresh(s.ctx, session.RefreshToken)
	s.Equal(http.StatusUnauthorized, s.status(err))

	err = s.svc.Logout(s.ctx, session.RefreshToken)
	s.Equal(http.StatusUnauthorized, s.status(err))

	err = s.svc.Logout(s.ctx, "")
	s.Equal(http.StatusBadRequest, s.status(err))
}

func (s *serviceSuite) TestAuthenticate() {
	session, _ := s.register()

	user, err := s.svc.Authenticate(s.ctx, session.AccessToken)
	s.Require().NoError(err)
	s.Equal(session.User.ID, user.ID)

	_, err = s.svc.Authenticate(s.ctx, "not-a-jwt")
	s.Equal(http.StatusUnauthorized, s.status(err))

	_, err = s.svc.Authenticate(s.ctx, session.RefreshToken)
	s.Equal(http.StatusUnauthorized, s.status(err))

	_, err = s.db.Users().Update(s.ctx, user.ID, storeRole(models.RoleDisabled))
	s.Require().NoError(err)
	_, err = s.svc.Authenticate(s.ctx, session.AccessToken)
	s.Equal(http.StatusForbidden, s.status(err))

	s.Require().NoError(s.db.Users().Delete(s.ctx, user.ID))
	_, err = s.svc.Authenticate(s.ctx, session.AccessToken)
	s.Equal(http.StatusNotFound, s.status(err))
}

func (s *serviceSuite) TestUpdateProfileChangesPassword() {
	session, in := s.register()
	user, err := s.db.Users().GetByID(s.ctx, session.User.ID)
	s.Require().NoError(err)

	company := "Acme"
	_, err = s.svc.UpdateProfile(s.ctx, user, ProfileUpdate{Company: &company, NewPassword: "N3w!Password"})
	s.Equal(http.StatusBadRequest, s.status(err))

	_, err = s.svc.UpdateProfile(s.ctx, user, ProfileUpdate{CurrentPassword: "wrong", NewPassword: "N3w!Password"})
	s.Equal(http.StatusBadRequest, s.status(err))

	updated, err := s.svc.UpdateProfile(s.ctx, user, ProfileUpdate{
		Company:         &company,
		CurrentPassword: in.Password,
		NewPassword:     "N3w!Password",
	})
	s.Require().NoError(err)
	s.Equal("Acme", updated.Company)

	_, err = s.svc.Login(s.ctx, in.Email, in.Password)
	s.Equal(http.StatusUnauthorized, s.status(err))
	_, err = s.svc.Login(s.ctx, in.Email, "N3w!Password")
	s.NoError(err)
}

func (s *serviceSuite) TestVerifyEmail() {
	session, in := s.register()
	mail, ok := s.notifier.Last("verification")
	s.Require().True(ok)

	err := s.svc.VerifyEmail(s.ctx, session.AccessToken)
	s.Equal(http.StatusBadRequest, s.status(err))

	s.Require().NoError(s.svc.VerifyEmail(s.ctx, mail.Token))
	user, err := s.db.Users().GetByEmail(s.ctx, session.User.Email)
	s.Require().NoError(err)
	s.True(user.IsMailVerified)

	err = s.svc.SendVerification(s.ctx, in.Email)
	s.Equal(http.StatusConflict, s.status(err))

	err = s.svc.SendVerification(s.ctx, "nobody@example.com")
	s.Equal(http.StatusNotFound, s.status(err))
}
