// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.28
//

package radiolocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testAP(t *testing.T) *WifiAccessPoint {
	t.Helper()
	ap, err := NewWifiAccessPoint("AA:BB:CC:DD:EE:FF", 2.4e9)
	require.NoError(t, err)
	return ap
}

func TestNewRangingReading(t *testing.T) {
	ap := testAP(t)

	r, err := NewRangingReading(ap, NewPoint2D(1, 2), 3.5)
	require.NoError(t, err)
	d, ok := r.Distance()
	assert.True(t, ok)
	assert.Equal(t, 3.5, d)
	_, ok = r.RSSI()
	assert.False(t, ok)
	assert.Equal(t, Point{1, 2}, r.Position())

	_, err = NewRangingReading(ap, NewPoint2D(0, 0), -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRangingReading(nil, NewPoint2D(0, 0), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRangingReading(ap, Point{1}, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewRssiReading(t *testing.T) {
	ap := testAP(t)

	r, err := NewRssiReading(ap, NewPoint3D(1, 2, 3), -60)
	require.NoError(t, err)
	rssi, ok := r.RSSI()
	assert.True(t, ok)
	assert.Equal(t, -60.0, rssi)
	_, ok = r.Distance()
	assert.False(t, ok)
}

func TestNewRangingAndRssiReading(t *testing.T) {
	r, err := NewRangingAndRssiReading(testAP(t), NewPoint2D(0, 0), 2.0, -55)
	require.NoError(t, err)
	d, ok := r.Distance()
	assert.True(t, ok)
	assert.Equal(t, 2.0, d)
	rssi, ok := r.RSSI()
	assert.True(t, ok)
	assert.Equal(t, -55.0, rssi)
}

func TestReadingWithStandardDeviations(t *testing.T) {
	r, err := NewRangingReading(testAP(t), NewPoint2D(0, 0), 1)
	require.NoError(t, err)

	r2, err := r.WithStandardDeviations(0.5, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.5, r2.DistanceStandardDeviation())
	assert.Equal(t, 3.0, r2.RSSIStandardDeviation())

	// Original stays untouched
	assert.Equal(t, 0.0, r.DistanceStandardDeviation())

	_, err = r.WithStandardDeviations(-0.1, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReadingWithPositionCovariance(t *testing.T) {
	r, err := NewRangingReading(testAP(t), NewPoint2D(0, 0), 1)
	require.NoError(t, err)

	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	r2, err := r.WithPositionCovariance(cov)
	require.NoError(t, err)

	// The stored matrix is a copy
	cov.SetSym(0, 0, 99)
	assert.Equal(t, 1.0, r2.PositionCovariance().At(0, 0))

	_, err = r.WithPositionCovariance(mat.NewSymDense(3, nil))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Indefinite matrices are rejected (eigenvalues 3 and -1)
	_, err = r.WithPositionCovariance(mat.NewSymDense(2, []float64{1, 2, 2, 1}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Singular but positive semi-definite is fine
	_, err = r.WithPositionCovariance(mat.NewSymDense(2, []float64{1, 0, 0, 0}))
	assert.NoError(t, err)

	r3, err := r2.WithPositionCovariance(nil)
	require.NoError(t, err)
	assert.Nil(t, r3.PositionCovariance())
}

func TestValidateReadings(t *testing.T) {
	ap := testAP(t)
	other, err := NewWifiAccessPoint("11:22:33:44:55:66", 2.4e9)
	require.NoError(t, err)

	r1, _ := NewRangingReading(ap, NewPoint2D(0, 0), 1)
	r2, _ := NewRangingReading(ap, NewPoint2D(1, 0), 1)

	dims, err := validateReadings([]Reading{r1, r2}, true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)

	// Mixed sources
	r3, _ := NewRangingReading(other, NewPoint2D(0, 1), 1)
	_, err = validateReadings([]Reading{r1, r3}, true, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Mixed dimensionality
	r4, _ := NewRangingReading(ap, NewPoint3D(0, 0, 0), 1)
	_, err = validateReadings([]Reading{r1, r4}, true, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Missing measurement kind
	r5, _ := NewRssiReading(ap, NewPoint2D(0, 0), -50)
	_, err = validateReadings([]Reading{r1, r5}, true, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = validateReadings([]Reading{r1, r5}, false, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Empty set
	_, err = validateReadings(nil, true, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// BSSID identity is case insensitive
	upper, _ := NewWifiAccessPoint("aa:bb:cc:dd:ee:ff", 2.4e9)
	r6, _ := NewRangingReading(upper, NewPoint2D(2, 2), 1)
	_, err = validateReadings([]Reading{r1, r6}, true, false)
	assert.NoError(t, err)
}

func TestBeaconIdentifier(t *testing.T) {
	b, err := NewBeacon("F7826DA6-4FA2-4E98-8024-BC5B71E0893E", 10, 7, 2.402e9)
	require.NoError(t, err)
	assert.Equal(t, "f7826da6-4fa2-4e98-8024-bc5b71e0893e/10/7", b.Identifier())

	_, err = NewBeacon("", 0, 0, 2.402e9)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
