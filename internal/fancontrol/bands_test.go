package fancontrol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTemp(t *testing.T) {
	tests := []struct {
		temp float64
		want TempBand
	}{
		{temp: -20, want: TempGreen},
		{temp: 30, want: TempGreen},
		{temp: 45, want: TempGreen},
		{temp: 45.01, want: TempYellow},
		{temp: 70, want: TempYellow},
		{temp: 70.01, want: TempRed},
		{temp: 120, want: TempRed},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyTemp(tc.temp, 45, 70), "temp=%v", tc.temp)
	}
}

func TestClassifyRPM(t *testing.T) {
	tests := []struct {
		rpm  float64
		want RPMBand
	}{
		{rpm: 0, want: RPMLow},
		{rpm: 300, want: RPMLow},
		{rpm: 300.5, want: RPMMed},
		{rpm: 700, want: RPMMed},
		{rpm: 701, want: RPMHigh},
		{rpm: 3000, want: RPMHigh},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyRPM(tc.rpm, 300, 700), "rpm=%v", tc.rpm)
	}
}

func TestClassify_ExactlyOneIndicatorOn(t *testing.T) {
	out := newFakeOutputs()
	pins := [3]int{22, 27, 17}
	for v := -50.0; v <= 1000; v += 0.25 {
		tb := ClassifyTemp(v, 45, 70)
		require.NoError(t, driveBand(out, pins, int(tb)))
		require.Equal(t, 1, out.countOn(pins), "temp=%v band=%v", v, tb)

		rb := ClassifyRPM(v*10, 300, 700)
		require.NoError(t, driveBand(out, pins, int(rb)))
		require.Equal(t, 1, out.countOn(pins), "rpm=%v band=%v", v*10, rb)
	}
}

func TestBandNames(t *testing.T) {
	assert.Equal(t, "yellow", TempYellow.String())
	assert.Equal(t, "med", RPMMed.String())
	assert.Equal(t, "TempBand(7)", TempBand(7).String())

	b, err := json.Marshal(struct {
		T TempBand `json:"t"`
		R RPMBand  `json:"r"`
	}{T: TempRed, R: RPMHigh})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"red","r":"high"}`, string(b))
}
