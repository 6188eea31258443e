package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	ReceiverID string `json:"receiverId"`
	Seq        int64  `json:"seq"`
}

func TestDecodeMapJSONTagsAndNumbers(t *testing.T) {
	p, err := DecodeMap[samplePayload](map[string]any{
		"receiverId": "doctor-1",
		"seq":        float64(42), // what encoding/json hands us
	})
	require.NoError(t, err)
	require.Equal(t, "doctor-1", p.ReceiverID)
	require.Equal(t, int64(42), p.Seq)
}

func TestDecodeMapNilPayload(t *testing.T) {
	_, err := DecodeMap[samplePayload](nil)
	require.Error(t, err)
}

func TestDecodeMapIgnoresUnknownKeys(t *testing.T) {
	p, err := DecodeMap[samplePayload](map[string]any{
		"receiverId": "doctor-1",
		"extra":      true,
	})
	require.NoError(t, err)
	require.Equal(t, "doctor-1", p.ReceiverID)
}
