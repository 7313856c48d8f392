package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrtrack/qr-track/internal/model"
)

func TestHashPasswordEmptyMeansUnprotected(t *testing.T) {
	hash, err := HashPassword("")
	require.NoError(t, err)
	assert.Nil(t, hash)
}

func TestHashPasswordNeverStoresPlaintext(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	require.NotNil(t, hash)
	assert.NotContains(t, *hash, "secret")
}

func TestCheckStates(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	tests := []struct {
		name      string
		hash      *string
		submitted string
		want      error
	}{
		{"unprotected without password", nil, "", nil},
		{"unprotected ignores submission", nil, "anything", nil},
		{"protected without submission", hash, "", model.ErrAuthRequired},
		{"protected wrong password", hash, "wrong", model.ErrAuthRejected},
		{"protected correct password", hash, "secret", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := &model.Stats{PasswordHash: tt.hash}
			err := Check(stats, tt.submitted)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
