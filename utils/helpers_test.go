package utils

import (
	"testing"

	"edupath_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("s3cret!", hash))
	assert.Error(t, CheckPassword("wrong", hash))
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(9)
	require.NoError(t, err)
	assert.Len(t, s, 9)
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"pdf", " PNG"}
	assert.True(t, IsValidFileExtension("passport.PDF", allowed))
	assert.True(t, IsValidFileExtension("scan.png", allowed))
	assert.False(t, IsValidFileExtension("run.exe", allowed))
	assert.False(t, IsValidFileExtension("noext", allowed))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "studying-in-the-uk-2027", Slugify("  Studying in the UK: 2027! "))
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	err := ValidateStruct(req{Email: "nope", Password: "short"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Error(), "email:")

	assert.NoError(t, ValidateStruct(req{Email: "a@b.co", Password: "longenough"}))
}

func TestToNotificationDTODefaults(t *testing.T) {
	n := models.Notification{UserID: 7, Title: "Hi", Channels: models.JSON(`["popup","email"]`)}
	n.User = models.User{Email: "jane@example.com"}
	dto := ToNotificationDTO(n)
	assert.Equal(t, []string{"popup", "email"}, dto.Channels)
	assert.Equal(t, uint(7), dto.User.ID)
	assert.Equal(t, "jane", dto.User.FullName)

	dto = ToNotificationDTO(models.Notification{UserID: 1})
	assert.Equal(t, []string{"normal"}, dto.Channels)
}
