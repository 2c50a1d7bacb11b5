package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScreeningRequest_Shapes(t *testing.T) {
	flat, err := ParseScreeningRequest([]byte(`{"call_id":"c1","transcript":"hello","metadata":{"k":"v"}}`))
	require.NoError(t, err)

	nested, err := ParseScreeningRequest([]byte(`{"name":"screen","args":{"call_id":"c1","transcript":"hello","metadata":{"k":"v"}}}`))
	require.NoError(t, err)

	assert.Equal(t, flat, nested)
	assert.Equal(t, "c1", flat.CallID)
	assert.Equal(t, "v", flat.Metadata["k"])
}

func TestParseScreeningRequest_TopLevelMetadataWins(t *testing.T) {
	req, err := ParseScreeningRequest([]byte(`{"metadata":{"src":"top"},"args":{"call_id":"c1","transcript":"t","metadata":{"src":"args"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "top", req.Metadata["src"])
}

func TestParseScreeningRequest_MissingFields(t *testing.T) {
	cases := map[string]string{
		"no transcript":    `{"call_id":"c1"}`,
		"blank transcript": `{"call_id":"c1","transcript":"   "}`,
		"no call id":       `{"transcript":"hi"}`,
		"empty args":       `{"call_id":"c1","transcript":"hi","args":{}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScreeningRequest([]byte(body))
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := ParseScreeningRequest([]byte(`{}`))
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "call_id is required")
	assert.Contains(t, err.Error(), "transcript is required")
}

func TestParseScreeningRequest_Malformed(t *testing.T) {
	_, err := ParseScreeningRequest([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedRequest)
	assert.NotErrorIs(t, err, ErrInvalidRequest)
}

func TestParseTransferRequest_Precedence(t *testing.T) {
	query := map[string]string{"call_id": "q", "target_number": "+1000", "whisper_message": "from query"}
	q := func(k string) string { return query[k] }

	req, err := ParseTransferRequest([]byte(`{"call_id":"body","args":{"call_id":"args","target_number":"+2000"}}`), q)
	require.NoError(t, err)
	assert.Equal(t, "body", req.CallID)
	assert.Equal(t, "+2000", req.TargetNumber)
	assert.Equal(t, "from query", req.WhisperMessage)

	req, err = ParseTransferRequest(nil, q)
	require.NoError(t, err)
	assert.Equal(t, "q", req.CallID)
}

func TestParseTransferRequest_RequiresCallID(t *testing.T) {
	_, err := ParseTransferRequest([]byte(`garbage`), nil)
	require.ErrorIs(t, err, ErrInvalidRequest)
}
