// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.20
//

package radiolocate

const (
	DefaultConfidence          = 0.99 // Confidence of the robust iteration bound
	DefaultMaxIterations       = 5000 // Ceiling on robust sampling attempts
	DefaultProgressDelta       = 0.05 // Minimum progress change notified to listeners
	DefaultRangingThreshold    = 1.0  // Inlier threshold for ranging residuals [m]
	DefaultRssiThreshold       = 6.0  // Inlier threshold for RSSI residuals [dBm]
	DefaultPathLossExponent    = 2.0  // Free-space path loss exponent
	DefaultTransmittedPowerdBm = -30  // Typical BLE beacon transmitted power [dBm]
)

// Numerical guards
const (
	minSampleDistance = 1e-7  // Receiver positions closer than this are degenerate [m]
	minRobustScale    = 1e-6  // Floor for the least-median robust scale estimate
	minWeight         = 1e-12 // Floor for reading weights
)
