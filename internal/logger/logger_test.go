package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNopLoggerDoesNotPanic(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Debug("debug")
		log.Info("info", String("k", "v"))
		log.Warn("warn", Int("n", 1))
		log.Error("error", Error(errors.New("boom")))
	})
}

func TestErrorFieldNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Info("msg", Error(nil))
	})
}

func TestWithFieldsReturnsDistinctLogger(t *testing.T) {
	base := Nop()
	derived := base.WithFields(String("peer", "abc"))
	assert.NotNil(t, derived)
}

func TestWithContextAttachesRequestID(t *testing.T) {
	base := New("json", InfoLevel)
	ctx := WithRequestID(context.Background(), "req-1")
	derived := base.WithContext(ctx)
	assert.NotNil(t, derived)
}

func TestSetLevel(t *testing.T) {
	log := New("json", InfoLevel)
	assert.NotPanics(t, func() { log.SetLevel(DebugLevel) })
}
