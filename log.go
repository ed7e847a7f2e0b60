// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.20
//

package radiolocate

import (
	"github.com/sirupsen/logrus"
)

// Package logger. Silent by default; raise the level to see per-iteration
// consensus diagnostics.
var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger replaces the package logger.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}

// SetLogLevel adjusts the verbosity of the package logger.
func SetLogLevel(level logrus.Level) {
	logger.SetLevel(level)
}
