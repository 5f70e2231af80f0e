// Package nlog is a small leveled logger, modeled on the teacher's cmn/nlog:
// a package-global verbosity gate plus Infoln/Infof/Errorln wrappers around
// the standard library's log.Logger. It exists so that call sites read the
// same way the teacher's do, without pulling in a third-party structured
// logging library the example pack never reaches for.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

var (
	std     = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	verbose int32
)

// SetVerbosity sets the global verbosity level. 0 disables V-gated logging.
func SetVerbosity(v int) { atomic.StoreInt32(&verbose, int32(v)) }

// Verbosity returns the current global verbosity level.
func Verbosity() int { return int(atomic.LoadInt32(&verbose)) }

// FastV reports whether the current verbosity is at least v.
func FastV(v int) bool { return Verbosity() >= v }

func Infoln(args ...any)             { std.Println(args...) }
func Infof(format string, a ...any)   { std.Printf(format, a...) }
func Errorln(args ...any)            { std.Println(append([]any{"ERROR:"}, args...)...) }
func Errorf(format string, a ...any)  { std.Printf("ERROR: "+format, a...) }
func Warningln(args ...any)          { std.Println(append([]any{"WARNING:"}, args...)...) }
func Warningf(format string, a ...any) { std.Printf("WARNING: "+format, a...) }

// V logs at Infoln only when the global verbosity is at least v, matching
// the teacher's cmn.Rom.FastV gate used around nlog.Infof call sites.
func V(v int, args ...any) {
	if FastV(v) {
		Infoln(args...)
	}
}
