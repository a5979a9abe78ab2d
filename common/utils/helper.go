package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	apperrors "github.com/scrimx/scrims/common/errors"
	"github.com/scrimx/scrims/common/logger"
	"google.golang.org/grpc"
)

func LoggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("gRPC call failed",
				"method", info.FullMethod,
				"duration", time.Since(start),
				"error", err,
			)
			return resp, apperrors.ToGRPCError(err)
		}
		log.Debug("gRPC call", "method", info.FullMethod, "duration", time.Since(start))
		return resp, nil
	}
}

// WaitForGracefulShutdown blocks until SIGINT/SIGTERM or ctx is done.
func WaitForGracefulShutdown(ctx context.Context, log *logger.Logger) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down...")
}
