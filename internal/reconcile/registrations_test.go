package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/goleak"

	"agency-backend/internal/auth"
	"agency-backend/internal/models"
	"agency-backend/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	db  *testutil.DB
	gw  *testutil.Gateway
	job *Registrations
}

func newFixture() *fixture {
	f := &fixture{db: testutil.NewDB(), gw: testutil.NewGateway()}
	f.job = NewRegistrations(f.db.Intents(), f.db.Users(), f.gw, time.Minute, 3)
	return f
}

func (f *fixture) pendingUser(t *testing.T, attempts int, age time.Duration) (*models.User, models.RegistrationIntent) {
	t.Helper()
	user := &models.User{Email: gofakeit.Email(), FirstName: gofakeit.FirstName(), LastName: gofakeit.LastName(), Role: models.RoleUser}
	require.NoError(t, f.db.Users().Create(context.Background(), user))
	intent := models.RegistrationIntent{
		ID:        primitive.NewObjectID(),
		UserID:    user.ID,
		Email:     user.Email,
		Status:    models.IntentPending,
		Attempts:  attempts,
		CreatedAt: time.Now().Add(-age),
	}
	f.db.Intents().Put(intent)
	return user, intent
}

func (f *fixture) status(t *testing.T, id primitive.ObjectID) models.RegistrationIntent {
	t.Helper()
	intent, ok := f.db.Intents().Get(id)
	require.True(t, ok)
	return intent
}

func TestRunCompletesPendingRegistration(t *testing.T) {
	f := newFixture()
	user, intent := f.pendingUser(t, 0, time.Hour)

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Completed: 1}, report)

	stored, err := f.db.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, models.IntentCompleted, f.status(t, intent.ID).Status)
	require.Len(t, f.gw.Customers, 1)
	assert.Equal(t, auth.CustomerIdempotencyKey(intent.ID), f.gw.Customers[0].IdempotencyKey)
}

func TestRunSkipsIntentsWithinGrace(t *testing.T) {
	f := newFixture()
	_, intent := f.pendingUser(t, 0, time.Second)

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, models.IntentPending, f.status(t, intent.ID).Status)
	assert.Empty(t, f.gw.Customers)
}

func TestRunClosesIntentsWithoutWork(t *testing.T) {
	f := newFixture()

	gone, goneIntent := f.pendingUser(t, 0, time.Hour)
	require.NoError(t, f.db.Users().Delete(context.Background(), gone.ID))

	linked, linkedIntent := f.pendingUser(t, 0, time.Hour)
	require.NoError(t, f.db.Users().SetStripeCustomerID(context.Background(), linked.ID, "cus_existing"))

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Completed: 1, Compensated: 1}, report)
	assert.Equal(t, models.IntentCompensated, f.status(t, goneIntent.ID).Status)
	assert.Equal(t, models.IntentCompleted, f.status(t, linkedIntent.ID).Status)
	assert.Empty(t, f.gw.Customers)
}

func TestRunRetriesThenCompensates(t *testing.T) {
	f := newFixture()
	f.gw.CustomerErr = errors.New("stripe down")
	user, intent := f.pendingUser(t, 1, time.Hour)

	report, err := f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Retrying: 1}, report)
	got := f.status(t, intent.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "stripe down", got.LastError)

	report, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Compensated: 1}, report)
	assert.Equal(t, models.IntentCompensated, f.status(t, intent.ID).Status)

	_, err = f.db.Users().GetByID(context.Background(), user.ID)
	assert.Error(t, err)
}

func TestEveryStopsWithContext(t *testing.T) {
	f := newFixture()
	_, intent := f.pendingUser(t, 0, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.job.Every(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, _ := f.db.Intents().Get(intent.ID)
		return got.Status == models.IntentCompleted
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
