// Package zaplog adapts the arlaunch logger interfaces onto zap.
package zaplog

import (
	"context"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-arlaunch"
)

// New builds a production logger, at debug level when verbose.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// RuleLogger logs rule evaluations at debug level and failures at warn.
func RuleLogger(logger *zap.Logger) arlaunch.RuleLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rules")
	return arlaunch.RuleLoggerFunc(func(event arlaunch.RuleLogEvent) {
		fields := []zap.Field{
			zap.String("engine", event.Engine),
			zap.String("rule", event.Rule),
			zap.String("expr", event.Expr),
			zap.Bool("result", event.Result),
			zap.Duration("duration", event.Duration),
		}
		if event.Err != nil {
			logger.Warn("rule evaluation failed", append(fields, zap.Error(event.Err))...)
			return
		}
		logger.Debug("rule evaluated", fields...)
	})
}

// LaunchLogger logs launcher phases at info level and failures at error.
func LaunchLogger(logger *zap.Logger) arlaunch.LaunchLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("launch")
	return arlaunch.LaunchLoggerFunc(func(event arlaunch.LaunchLogEvent) {
		fields := []zap.Field{
			zap.String("phase", event.Phase),
			zap.String("launcher", event.Launcher),
			zap.Stringer("target", event.Target),
			zap.Duration("duration", event.Duration),
		}
		if event.Viewer != "" {
			fields = append(fields, zap.String("viewer", string(event.Viewer)))
		}
		if event.ModelURL != "" {
			fields = append(fields, zap.String("model_url", event.ModelURL))
		}
		if event.Err != nil {
			logger.Error("launch phase failed", append(fields, zap.Error(event.Err))...)
			return
		}
		logger.Info("launch phase completed", fields...)
	})
}

// ActivitySink is a go-users ActivitySink that writes every record to logger.
func ActivitySink(logger *zap.Logger) usertypes.ActivitySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return activitySink{logger: logger.Named("activity")}
}

type activitySink struct {
	logger *zap.Logger
}

func (s activitySink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.logger.Info(record.Verb,
		zap.String("object_type", record.ObjectType),
		zap.String("object_id", record.ObjectID),
		zap.String("channel", record.Channel),
		zap.Stringer("actor_id", record.ActorID),
		zap.Stringer("tenant_id", record.TenantID),
		zap.Any("data", record.Data),
		zap.Time("occurred_at", record.OccurredAt),
	)
	return nil
}
