package feed

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deflateBase64(t *testing.T, raw string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeFrameHandlesPlainTopic(t *testing.T) {
	payload := []byte(`{"LapCount":{"CurrentLap":5}}`)
	entries := decodeFrame(payload)
	require.Len(t, entries, 1)
	assert.Equal(t, "LapCount", entries[0].Topic)
}

func TestDecodeFrameDecompressesDotZTopics(t *testing.T) {
	encoded := deflateBase64(t, `{"x":1}`)
	raw, err := json.Marshal(encoded)
	require.NoError(t, err)
	payload := []byte(`{"Position.z":` + string(raw) + `}`)

	entries := decodeFrame(payload)
	require.Len(t, entries, 1)
	assert.Equal(t, "Position", entries[0].Topic)
	data, ok := entries[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), data["x"])
}

func TestDecodeFrameMalformedTopLevelJSONYieldsNoEntries(t *testing.T) {
	entries := decodeFrame([]byte(`not json`))
	assert.Nil(t, entries)
}

func TestDecodeFrameSkipsMalformedDotZPayloadWithoutFailingOthers(t *testing.T) {
	payload := []byte(`{"CarData.z":"not-valid-base64!!!","LapCount":{"CurrentLap":1}}`)
	entries := decodeFrame(payload)
	require.Len(t, entries, 1)
	assert.Equal(t, "LapCount", entries[0].Topic)
}

func TestDecompressZRoundTrips(t *testing.T) {
	encoded := deflateBase64(t, `{"hello":"world"}`)
	raw, err := json.Marshal(encoded)
	require.NoError(t, err)

	out, err := decompressZ(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(out))
}

func TestDecompressZInvalidBase64Errors(t *testing.T) {
	raw, err := json.Marshal("not-base64!!!")
	require.NoError(t, err)
	_, err = decompressZ(raw)
	assert.Error(t, err)
}
