package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/gigbell/internal/credential"
)

func TestDescribeIdentity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name string
		id   credential.Identity
		want string
	}{
		{"opaque", credential.Identity{Opaque: true}, "Signed in with an opaque token."},
		{"no expiry", credential.Identity{Subject: "ana"}, "Signed in as ana."},
		{"unnamed", credential.Identity{}, "Signed in as an unnamed account."},
		{"valid", credential.Identity{Subject: "ana", ExpiresAt: later},
			"Signed in as ana until " + later.Local().Format(time.DateTime) + "."},
		{"expired", credential.Identity{Subject: "ana", ExpiresAt: earlier},
			"Signed in as ana; the token expired " + earlier.Local().Format(time.DateTime) + "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeIdentity(tt.id, now))
		})
	}
}
