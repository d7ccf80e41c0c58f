package logger

import (
	"fmt"

	"go.uber.org/zap"
)

var base *zap.Logger

var serviceName = "engine"

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init builds the process-wide logger. Called once from main before fx starts;
// everything else uses the printf facade below.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	base = l
	return nil
}

func with() *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return base.With(zap.String("service", serviceName))
}

func Info(format string, args ...interface{}) {
	with().Info(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	with().Error(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	with().Warn(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	with().Fatal(fmt.Sprintf(format, args...))
}
