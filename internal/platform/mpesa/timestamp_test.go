package mpesa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	at := time.Date(2024, 12, 31, 22, 30, 5, 999, time.UTC)
	require.Equal(t, "20250101013005", Timestamp(at, LoadLocation("Africa/Nairobi")))
	require.Equal(t, "20241231223005", Timestamp(at, time.UTC))
}

func TestLoadLocation_Fallback(t *testing.T) {
	loc := LoadLocation("Not/AZone")
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	require.Equal(t, 3*60*60, offset)
}

func TestPassword(t *testing.T) {
	require.Equal(t, "MTc0Mzc5cGFzc2tleTIwMjQwMTE1MTMwMDAw", Password("174379", "passkey", "20240115130000"))
}
