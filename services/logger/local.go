package logsvc

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// NewLocalLogger logs to stderr and, when conf.LogFile is set, to a rotated log file.
func NewLocalLogger(conf *core.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if conf.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   conf.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	level := log.InfoLevel
	if conf.Debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportCaller:    conf.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          conf.AppName,
	})
}

// keyvals flattens the core.Logger args into key/value pairs.
func keyvals(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(args)*2)
	for i, arg := range args {
		switch a := arg.(type) {
		case error:
			kvs = append(kvs, "err", fmt.Sprintf("%+v", a))
		case user.User:
			kvs = append(kvs, "user", a.Username)
		case map[string]interface{}:
			keys := make([]string, 0, len(a))
			for k := range a {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kvs = append(kvs, k, a[k])
			}
		default:
			kvs = append(kvs, fmt.Sprintf("arg%d", i), a)
		}
	}
	return kvs
}

// Logger adapts a local logger to core.Logger, for environments without rollbar.
type Logger struct {
	*log.Logger
}

var _ core.Logger = (*Logger)(nil)

func (l Logger) Debug(msg string, args ...interface{}) { l.Logger.Debug(msg, keyvals(args)...) }
func (l Logger) Info(msg string, args ...interface{})  { l.Logger.Info(msg, keyvals(args)...) }
func (l Logger) Warn(msg string, args ...interface{})  { l.Logger.Warn(msg, keyvals(args)...) }
func (l Logger) Error(msg string, args ...interface{}) { l.Logger.Error(msg, keyvals(args)...) }
func (l Logger) Fatal(msg string, args ...interface{}) { l.Logger.Fatal(msg, keyvals(args)...) }
