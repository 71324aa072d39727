//go:build sqlite_vec && cgo

package index

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loadable extension with the
	// mattn/go-sqlite3 driver, so a vec0 virtual table is available to
	// any connection opened after this package is imported. Search in
	// index.go does not query a vec0 table: with or without this build tag
	// it uses its brute-force scan, which is correct at any scale this
	// registry realistically reaches (a developer's installed skill count,
	// not a web-scale corpus).
	vec.Auto()
}
