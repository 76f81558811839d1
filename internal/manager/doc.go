// Package manager is the inference orchestration core. It is structured into
// small files by concern:
//
//   - manager.go: core Manager type, constructor, status reporting.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - errors.go: the failure taxonomy and Is* helpers.
//   - cache.go: the warm in-process model cache (LRU + pressure eviction).
//   - invoker.go: one-shot external interpreter invocations with a timeout race.
//   - scripts.go: embedded interpreter scripts and per-call materialization.
//   - probe.go: cached dependency probing per interpreter/module pair.
//   - router.go: Transcribe/Correct entry points and the request state machine.
//   - pressure.go: memory-pressure handling wired to the cache.
//   - events.go: lifecycle event publishing.
//
// Build tags and runtimes:
//
//   - In-process correction (optional):
//     Uses the go-llama.cpp adapter. Enabled with `-tags=llama`.
//     Files: adapter_llama.go, llama_cgo.go (linker rpath hints).
//     A no-CGO stub exists when the tag is not set: adapter_llama_stub.go.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (NewWithConfig, Transcribe, Correct, ProbeModule,
// Status, ClearCache). Internal types are subject to change.
package manager
