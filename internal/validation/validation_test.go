package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-backend/internal/apperr"
)

type signup struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,strongpassword"`
	Phone    string `json:"phone" binding:"omitempty,phone"`
	OrderID  string `json:"orderId" binding:"omitempty,objectid"`
	Subject  string `json:"subject" binding:"omitempty,contactsubject"`
}

func bind(t *testing.T, body string) error {
	t.Helper()
	Setup()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	var dst signup
	return BindJSON(c, &dst)
}

func TestBindJSON_Valid(t *testing.T) {
	err := bind(t, `{"email":"a@b.co","password":"Str0ng!Pass","phone":"+33612345678","orderId":"65f1c2a9e4b0a1b2c3d4e5f6","subject":"Autre"}`)
	assert.NoError(t, err)
}

func TestBindJSON_FieldMessages(t *testing.T) {
	err := bind(t, `{"email":"nope","password":"weak","phone":"12","orderId":"xyz","subject":"Spam"}`)
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.ElementsMatch(t, []string{
		"email must be a valid email address",
		"password must be at least 8 characters and contain an upper case letter, a digit and a symbol",
		"phone must contain between 10 and 15 digits",
		"orderId must be a valid id",
		"subject must be one of: Site Vitrine, Boutique E-commerce, Logiciel Web, Coaching Web, Autre",
	}, appErr.Fields)
}

func TestBindJSON_MalformedBody(t *testing.T) {
	err := bind(t, `{"email":`)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))

	err = bind(t, ``)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}

func TestStrongPassword(t *testing.T) {
	tests := map[string]bool{
		"Str0ng!Pass":   true,
		"Sh0rt!":        false,
		"nouppercase1!": false,
		"NoDigits!!":    false,
		"NoSymbol123":   false,
		"Espace 123":    true,
	}
	for password, want := range tests {
		assert.Equal(t, want, StrongPassword(password), password)
	}
}

func TestParseID(t *testing.T) {
	_, err := ParseID("65f1c2a9e4b0a1b2c3d4e5f6", "id")
	assert.NoError(t, err)

	_, err = ParseID("not-an-id", "orderId")
	require.Error(t, err)
	appErr, _ := apperr.As(err)
	assert.Equal(t, []string{"orderId must be a valid id"}, appErr.Fields)
}
