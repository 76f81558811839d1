//go:build !llama

package manager

import "errors"

// This file provides a no-CGO stub for the llama adapter. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real adapter lives in adapter_llama.go (tagged 'llama').

var llamaBuilt = false

// loadLlamaModel fails fast: the llama runtime is not available in this
// build. The router treats this as a LoadFailed, not a mocked success.
func loadLlamaModel(path string, ctxSize, threads int) (ModelHandle, error) {
	return nil, errors.New("llama support not built (missing 'llama' build tag)")
}
