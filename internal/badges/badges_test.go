package badges

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	g, err := NewGenerator("s3cret")
	require.NoError(t, err)

	a := &models.Attendee{ID: 1, Code: "order12345001", Source: models.SourceEventbrite}
	token, err := g.Token(a)
	require.NoError(t, err)

	code, source, err := g.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "order12345001", code)
	assert.Equal(t, models.SourceEventbrite, source)

	again, err := g.Token(a)
	require.NoError(t, err)
	assert.NotEqual(t, token, again, "tokens use a fresh nonce")
}

func TestDecode_RejectsForeignAndTamperedTokens(t *testing.T) {
	g, err := NewGenerator("s3cret")
	require.NoError(t, err)
	other, err := NewGenerator("another")
	require.NoError(t, err)

	token, err := other.Token(&models.Attendee{Code: "EZ-1", Source: models.SourceEventioz})
	require.NoError(t, err)

	_, _, err = g.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = g.Decode("not*base64")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = g.Decode("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPNG(t *testing.T) {
	g, err := NewGenerator("s3cret")
	require.NoError(t, err)

	data, err := g.PNG(&models.Attendee{ID: 3, Code: "EZ-1", Source: models.SourceEventioz})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, defaultSize, img.Bounds().Dx())
}
