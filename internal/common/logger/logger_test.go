package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	Component(log, "dispatcher").
		WithError(errors.New("boom")).
		Warn("dispatch failed", map[string]interface{}{
			"applicantId": "a-1",
			"cause":       errors.New("smtp down"),
		})

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "dispatch failed", entries[0].Message)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "dispatcher", ctx["component"])
	assert.Equal(t, "a-1", ctx["applicantId"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "smtp down", ctx["cause"])
}

func TestComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Component(nil, "queue").Info("started", nil)
	})
}
