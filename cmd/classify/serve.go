package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/Brownie44l1/image-classifier/internal/handlers"
)

const shutdownTimeout = 10 * time.Second

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(err, exitFailure)
	}
	setupLogging(cfg)

	clf, engine, err := openClassifier(cfg)
	if err != nil {
		return exitError(err)
	}
	defer engine.Close()

	handler, err := handlers.NewHandler(clf, handlers.Options{
		CacheSize:      cfg.CacheSize,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logrus.StandardLogger(),
	})
	if err != nil {
		return cli.NewExitError(err, exitFailure)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handlers.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":    cfg.Listen,
			"model":   cfg.ModelPath,
			"classes": len(clf.Labels()),
		}).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return cli.NewExitError(err, exitFailure)
		}
		return nil
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return cli.NewExitError(err, exitFailure)
	}
	return nil
}
