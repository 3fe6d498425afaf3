package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			"configuration error",
			&models.ConfigurationError{Field: "price_id", Reason: "no mapping"},
			http.StatusUnprocessableEntity,
		},
		{
			"wrapped configuration error",
			fmt.Errorf("upsert: %w", &models.ConfigurationError{Field: "x", Reason: "y"}),
			http.StatusUnprocessableEntity,
		},
		{
			"collaborator unavailable",
			&models.CollaboratorUnavailableError{Collaborator: "billing-service", Err: errors.New("timeout")},
			http.StatusServiceUnavailable,
		},
		{
			"inconsistent state",
			&models.InconsistentStateError{UserID: "u1", Detail: "unknown tier"},
			http.StatusUnprocessableEntity,
		},
		{
			"anything else",
			errors.New("boom"),
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
