package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFor("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, levelFor(" warn "))
	assert.Equal(t, zapcore.InfoLevel, levelFor("chatty"))
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, DefaultLogger(), FromContext(context.Background()))

	l := zap.NewNop().Sugar()
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestNewLoggerLevel(t *testing.T) {
	l := NewLogger("error", true)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.ErrorLevel))
}
