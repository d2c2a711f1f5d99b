// Package monitoring holds the diagnostic logging hook shared by internal packages.
package monitoring

import "log"

// Logf is the diagnostic logger used outside cmd/. It defaults to log.Printf.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces Logf. nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
