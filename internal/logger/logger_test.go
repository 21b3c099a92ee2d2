package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGetLoggerLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, NewAppLogger(&Config{LogLevel: "DEBUG"}).getLoggerLevel())
	assert.Equal(t, zapcore.WarnLevel, NewAppLogger(&Config{LogLevel: "warn"}).getLoggerLevel())
	assert.Equal(t, zapcore.InfoLevel, NewAppLogger(&Config{LogLevel: "verbose"}).getLoggerLevel())
	assert.Equal(t, zapcore.InfoLevel, NewAppLogger(nil).getLoggerLevel())
}

func TestInitLogger(t *testing.T) {
	appLogger := NewAppLogger(&Config{LogLevel: "error", DevMode: true})
	appLogger.InitLogger()

	assert.NotNil(t, appLogger.Logger())
	assert.False(t, appLogger.Logger().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, appLogger.Logger().Core().Enabled(zapcore.ErrorLevel))

	child := appLogger.With(zap.String("component", "pool"))
	assert.NotNil(t, child.Logger())
	child.Infof("suppressed at error level: %d", 1)
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Warnf("dropped %s", "message")
	assert.NotNil(t, log.Logger())
}
