// Package scanerr aggregates compile-time diagnostics (scan and parse
// errors) the same way github.com/mna/nenuphar's lang/scanner package does:
// by re-exporting the standard library's go/scanner error list instead of
// hand-rolling one. The teacher's scanner package does exactly this
// ("type Error = scanner.Error", "type ErrorList = scanner.ErrorList"); this
// package keeps that idiom for the compiler, which is the only place in this
// repo that reports source-position diagnostics.
package scanerr

import "go/scanner"

type (
	// Error is one positioned diagnostic.
	Error = scanner.Error
	// List collects diagnostics in the order they are reported. It is
	// go/scanner.ErrorList: its Error method returns the first diagnostic
	// as "file:line: message", followed by "(and N more errors)" when there
	// is more than one; PrintError writes every diagnostic on its own line.
	List = scanner.ErrorList
)

// PrintError writes err to w using the same formatting scanner.PrintError
// uses, one diagnostic per line.
var PrintError = scanner.PrintError
