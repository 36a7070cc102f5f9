package registration

import (
	"testing"

	"ms-registration/internal/apperr"
	"ms-registration/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCheckTransition(t *testing.T) {
	const (
		confirmed  = models.RegistrationConfirmed
		waitlisted = models.RegistrationWaitlisted
		cancelled  = models.RegistrationCancelled
	)

	tests := []struct {
		from, to models.RegistrationStatus
		code     apperr.Code
	}{
		{confirmed, waitlisted, ""},
		{waitlisted, confirmed, ""},
		{confirmed, cancelled, ""},
		{waitlisted, cancelled, ""},
		{confirmed, confirmed, ""},
		{cancelled, cancelled, ""},
		{cancelled, confirmed, apperr.CodeInvalidTransition},
		{cancelled, waitlisted, apperr.CodeInvalidTransition},
		{confirmed, "ATTENDED", apperr.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := checkTransition(tt.from, tt.to)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}
