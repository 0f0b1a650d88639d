//go:build wasm

package internal

// wasm runs a single thread, every caller shares one id
func goroutineID() int64 {
	return 1
}
