package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/otpgate/internal/otp/app"
	"github.com/aussiebroadwan/otpgate/internal/otp/console"
	"github.com/aussiebroadwan/otpgate/internal/otp/service"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitVerified  = 0
	exitFailure   = 1
	exitCancelled = 2
	exitBlocked   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := app.LoadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return exitVerified
	}
	if err != nil {
		log.Printf("failed to load configuration: %v", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := console.New(os.Stdin, os.Stdout)

	application, err := app.New(ctx, cfg, console.DebugDeliverer{Out: os.Stdout})
	if err != nil {
		log.Printf("failed to initialize application: %v", err)
		return exitFailure
	}
	defer application.Shutdown()

	res, err := application.Run(ctx, term)
	switch {
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case err != nil:
		log.Printf("application error: %v", err)
		return exitFailure
	}

	switch {
	case errors.Is(res.Err(), service.ErrCancelled), errors.Is(res.Err(), service.ErrExpired):
		return exitCancelled
	case errors.Is(res.Err(), service.ErrAttemptsExhausted):
		return exitBlocked
	default:
		return exitVerified
	}
}
