// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.21
//

package radiolocate

import "math"

// DBmToPower converts a power level in dBm to linear power in milliwatts.
func DBmToPower(dBm float64) float64 {
	return math.Pow(10, dBm/10)
}

// PowerToDBm converts linear power in milliwatts to dBm.
func PowerToDBm(mw float64) float64 {
	return 10 * math.Log10(mw)
}
