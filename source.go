// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.22
//

package radiolocate

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// RadioSource
//-------------------------------------------------------------------

// RadioSource identifies the emitter being located. All readings of one
// estimation must reference the same source.
type RadioSource interface {
	// Identifier is a stable identity key (BSSID for Wi-Fi, UUID/major/minor
	// for BLE beacons).
	Identifier() string
	// Frequency is the carrier frequency [Hz].
	Frequency() float64
}

//-------------------------------------------------------------------
// WifiAccessPoint
//-------------------------------------------------------------------

// WifiAccessPoint identifies a Wi-Fi access point by its BSSID.
type WifiAccessPoint struct {
	BSSID string
	SSID  string
	Freq  float64
}

func NewWifiAccessPoint(bssid string, frequency float64) (*WifiAccessPoint, error) {
	if bssid == "" {
		return nil, argErrorf("empty BSSID")
	}
	if frequency < 0 {
		return nil, argErrorf("negative frequency: %f", frequency)
	}
	return &WifiAccessPoint{BSSID: bssid, Freq: frequency}, nil
}

func (a *WifiAccessPoint) Identifier() string {
	return strings.ToLower(a.BSSID)
}

func (a *WifiAccessPoint) Frequency() float64 {
	return a.Freq
}

func (a *WifiAccessPoint) String() string {
	return fmt.Sprintf("AP %s (%.0f MHz)", a.BSSID, a.Freq/1e6)
}

//-------------------------------------------------------------------
// Beacon
//-------------------------------------------------------------------

// Beacon identifies a BLE beacon by its UUID, major and minor values.
type Beacon struct {
	UUID  string
	Major uint16
	Minor uint16
	Freq  float64
}

func NewBeacon(uuid string, major, minor uint16, frequency float64) (*Beacon, error) {
	if uuid == "" {
		return nil, argErrorf("empty beacon UUID")
	}
	if frequency < 0 {
		return nil, argErrorf("negative frequency: %f", frequency)
	}
	return &Beacon{UUID: uuid, Major: major, Minor: minor, Freq: frequency}, nil
}

func (b *Beacon) Identifier() string {
	return fmt.Sprintf("%s/%d/%d", strings.ToLower(b.UUID), b.Major, b.Minor)
}

func (b *Beacon) Frequency() float64 {
	return b.Freq
}

func (b *Beacon) String() string {
	return fmt.Sprintf("beacon %s %d:%d", b.UUID, b.Major, b.Minor)
}

//-------------------------------------------------------------------
// LocatedRadioSource
//-------------------------------------------------------------------

// LocatedRadioSource combines a source identity with its estimated geometry
// and radio parameters.
type LocatedRadioSource struct {
	Source              RadioSource
	Position            Point
	PositionCovariance  *mat.SymDense // nil when no covariance was kept
	TransmittedPowerdBm float64       // NaN when not estimated
	PathLossExponent    float64
}

// Accuracy returns the standard position accuracy [m] derived from the
// position covariance, NaN when no covariance is available.
func (s *LocatedRadioSource) Accuracy() float64 {
	return CovarianceAccuracy(s.PositionCovariance)
}
