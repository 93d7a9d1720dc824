package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"prod", Options{Env: "prod"}, false},
		{"local with level", Options{Env: "local", Level: "debug"}, false},
		{"cli to stderr", Options{Env: "dev", Stderr: true, Service: "ragserver", Version: "dev"}, false},
		{"unknown env", Options{Env: "staging"}, true},
		{"bad level", Options{Env: "dev", Level: "loud"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := New(tc.opts)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil {
				t.Fatal("expected logger")
			}
		})
	}
}

func TestNew_LevelApplied(t *testing.T) {
	l, err := New(Options{Env: "prod", Level: "warn", Stderr: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zap.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	reqLogger := zap.New(core)
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)
	fallback := zap.New(fallbackCore)

	ctx := ContextWithLogger(context.Background(), reqLogger)
	FromContext(ctx, fallback).Info("scoped")
	if logs.Len() != 1 || fallbackLogs.Len() != 0 {
		t.Errorf("scoped logger not used: %d/%d", logs.Len(), fallbackLogs.Len())
	}

	FromContext(context.Background(), fallback).Info("fallback")
	if fallbackLogs.Len() != 1 {
		t.Errorf("fallback logger not used")
	}

	// no logger anywhere: no-op, must not panic
	FromContext(context.Background(), nil).Info("dropped")
}
