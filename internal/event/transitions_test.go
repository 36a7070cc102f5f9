package event

import (
	"testing"

	"ms-registration/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestIsStatusTransitionAllowed(t *testing.T) {
	const (
		draft     = models.EventStatusDraft
		published = models.EventStatusPublished
		cancelled = models.EventStatusCancelled
	)

	allowed := map[[2]models.EventStatus]bool{
		{draft, draft}:         true,
		{draft, published}:     true,
		{draft, cancelled}:     true,
		{published, published}: true,
		{published, cancelled}: true,
		{cancelled, cancelled}: true,
	}

	for _, from := range []models.EventStatus{draft, published, cancelled} {
		for _, to := range []models.EventStatus{draft, published, cancelled} {
			want := allowed[[2]models.EventStatus{from, to}]
			assert.Equal(t, want, isStatusTransitionAllowed(from, to), "%s -> %s", from, to)
		}
	}
}
