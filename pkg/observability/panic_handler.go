package observability

import (
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with the stack trace. It
// must be called directly in a defer statement:
//
//	defer observability.RecoverPanic(log, "renewal cron job")
//
// The panic is not re-raised.
func RecoverPanic(log *logrus.Logger, where string) {
	if r := recover(); r != nil {
		logPanic(log, where, r)
	}
}

func logPanic(log *logrus.Logger, where string, r any) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": where,
	}).Error("PANIC recovered")
}
