package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// SafeGo запускает горутину с обработкой panic. Используется для
// fire-and-forget побочных эффектов: упавшее уведомление не должно
// ронять обработку запроса.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		logrus.WithFields(logrus.Fields{
			"panic": r,
			"stack": string(debug.Stack()),
		}).Error("goroutine: panic recovered")
	}
}
