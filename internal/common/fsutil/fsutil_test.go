package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	exp, err := ExpandHome("~/venvs/scribed/bin/python3")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS != "windows" {
		expected := filepath.Join(home, "venvs/scribed/bin/python3")
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestPathExists(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "f")
	if PathExists(p) {
		t.Fatalf("missing path reported as existing")
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !PathExists(p) {
		t.Fatalf("existing path reported as missing")
	}
}

func TestIsExecutableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	d := t.TempDir()
	plain := filepath.Join(d, "plain")
	if err := os.WriteFile(plain, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	exe := filepath.Join(d, "exe")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if IsExecutableFile(plain) {
		t.Fatalf("non-executable file accepted")
	}
	if !IsExecutableFile(exe) {
		t.Fatalf("executable file rejected")
	}
	if IsExecutableFile(d) {
		t.Fatalf("directory accepted")
	}
	if IsExecutableFile(filepath.Join(d, "missing")) {
		t.Fatalf("missing path accepted")
	}
}
