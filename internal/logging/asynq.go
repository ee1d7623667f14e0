package logging

import "go.uber.org/zap"

// AsynqLogger adapts zap to asynq.Logger.
type AsynqLogger struct {
	sugar *zap.SugaredLogger
}

func NewAsynqLogger(logger *zap.Logger) *AsynqLogger {
	return &AsynqLogger{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *AsynqLogger) Debug(args ...any) { l.sugar.Debug(args...) }
func (l *AsynqLogger) Info(args ...any)  { l.sugar.Info(args...) }
func (l *AsynqLogger) Warn(args ...any)  { l.sugar.Warn(args...) }
func (l *AsynqLogger) Error(args ...any) { l.sugar.Error(args...) }

// Fatal logs at error level. asynq calls Fatal on unrecoverable server
// errors and exits on its own, so zap must not exit first.
func (l *AsynqLogger) Fatal(args ...any) { l.sugar.Error(args...) }
