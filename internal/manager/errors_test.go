package manager

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestErrorPredicatesAreDisjoint(t *testing.T) {
	errs := map[string]error{
		"interpreter": ErrInterpreterNotFound("/usr/bin/python3"),
		"script":      ErrScriptNotFound("transcribe.py"),
		"dependency":  ErrDependencyMissing("parakeet_mlx", "pip install parakeet-mlx"),
		"timeout":     ErrTimedOut(25 * time.Second),
		"process":     ErrProcessFailed("exit status 1"),
		"invalid":     ErrInvalidResponse("not JSON"),
		"operation":   ErrOperationFailed("bad audio"),
		"load":        ErrLoadFailed(errors.New("boom")),
		"empty":       ErrEmptyResult(),
		"backend":     ErrBackendNotFound("nope"),
	}
	preds := map[string]func(error) bool{
		"interpreter": IsInterpreterNotFound,
		"script":      IsScriptNotFound,
		"dependency":  IsDependencyMissing,
		"timeout":     IsTimedOut,
		"process":     IsProcessFailed,
		"invalid":     IsInvalidResponse,
		"operation":   IsOperationFailed,
		"load":        IsLoadFailed,
		"empty":       IsEmptyResult,
		"backend":     IsBackendNotFound,
	}
	for errName, err := range errs {
		for predName, pred := range preds {
			if got, want := pred(err), errName == predName; got != want {
				t.Errorf("%s(%s) = %v, want %v", predName, errName, got, want)
			}
		}
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("transcribe: %w", ErrTimedOut(25*time.Second))
	if !IsTimedOut(wrapped) {
		t.Fatalf("expected predicate to match a wrapped error")
	}
	if IsTimedOut(errors.New("timed out")) {
		t.Fatalf("predicate must not match by message text")
	}
}

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrInterpreterNotFound("p"), http.StatusServiceUnavailable},
		{ErrScriptNotFound("s"), http.StatusInternalServerError},
		{ErrDependencyMissing("m", "h"), http.StatusServiceUnavailable},
		{ErrTimedOut(time.Second), http.StatusGatewayTimeout},
		{ErrProcessFailed("d"), http.StatusBadGateway},
		{ErrInvalidResponse("d"), http.StatusBadGateway},
		{ErrOperationFailed("d"), http.StatusUnprocessableEntity},
		{ErrLoadFailed(errors.New("x")), http.StatusInternalServerError},
		{ErrEmptyResult(), http.StatusUnprocessableEntity},
		{ErrBackendNotFound("b"), http.StatusNotFound},
	}
	for _, tc := range cases {
		sc, ok := tc.err.(interface{ StatusCode() int })
		if !ok {
			t.Errorf("%T carries no status code", tc.err)
			continue
		}
		if sc.StatusCode() != tc.want {
			t.Errorf("%T: status %d, want %d", tc.err, sc.StatusCode(), tc.want)
		}
	}
}

func TestTimedOutMessageNamesTheLimit(t *testing.T) {
	err := ErrTimedOut(25 * time.Second)
	if !strings.Contains(err.Error(), "25") {
		t.Fatalf("expected limit in message, got %q", err.Error())
	}
}

func TestDependencyHint(t *testing.T) {
	if got := DependencyHint(ErrDependencyMissing("mlx_lm", "pip install mlx-lm")); got != "pip install mlx-lm" {
		t.Fatalf("unexpected hint %q", got)
	}
	if got := DependencyHint(ErrTimedOut(time.Second)); got != "" {
		t.Fatalf("expected empty hint for other errors, got %q", got)
	}
}

func TestLoadFailedUnwraps(t *testing.T) {
	underlying := errors.New("mmap failed")
	err := ErrLoadFailed(underlying)
	if !errors.Is(err, underlying) {
		t.Fatalf("expected underlying error to be reachable")
	}
	if !strings.Contains(err.Error(), "mmap failed") {
		t.Fatalf("expected underlying detail in message, got %q", err.Error())
	}
}

func TestInstallHint(t *testing.T) {
	if got := InstallHint("parakeet_mlx"); got != "pip install parakeet-mlx" {
		t.Fatalf("unexpected hint %q", got)
	}
	if got := InstallHint("python dependency"); !strings.Contains(got, "pip install") {
		t.Fatalf("generic hint should still be actionable, got %q", got)
	}
}
