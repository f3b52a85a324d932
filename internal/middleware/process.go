package middleware

import (
	"context"
	"os"
	"runtime/debug"

	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/service"
)

// ProcessGuard reports failures that happen outside any request. A panic in a guarded
// goroutine is recorded, the queue is flushed and the process exits with status 1;
// errors passed to Report are recorded and the process keeps running.
type ProcessGuard struct {
	errs    *service.ErrorService
	logging *service.LoggingService
	exit    func(code int)
}

func NewProcessGuard(errs *service.ErrorService, logging *service.LoggingService) *ProcessGuard {
	return &ProcessGuard{errs: errs, logging: logging, exit: os.Exit}
}

// Go runs fn on its own goroutine under the guard.
func (g *ProcessGuard) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.fatal(ctx, name, apperrors.NewPanic(r, debug.Stack()))
			}
		}()
		fn(ctx)
	}()
}

// Report records a background error without stopping the process.
func (g *ProcessGuard) Report(ctx context.Context, name string, err error) {
	if err == nil {
		return
	}
	logger.Error("unhandled background error", "process", name, "error", err)
	g.errs.HandleError(ctx, err, processRequest(name), nil, map[string]any{"process": name, "fatal": false})
}

func (g *ProcessGuard) fatal(ctx context.Context, name string, err *apperrors.AppError) {
	logger.Error("uncaught panic, shutting down", "process", name, "error", err)
	g.errs.HandleError(ctx, err, processRequest(name), nil, map[string]any{"process": name, "fatal": true})
	g.logging.Close()
	g.exit(1)
}

func processRequest(name string) *service.RequestContext {
	return &service.RequestContext{Path: "/process/" + name}
}
