package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nergy-se/heatharmony/pkg/api/v1/config"
	"github.com/nergy-se/heatharmony/pkg/app"
	"github.com/nergy-se/heatharmony/pkg/version"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()
	err := Run(ctx)
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func Run(ctx context.Context) error {
	config, err := config.Load()
	if err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("error setting logrus loglevel: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.WithField("version", version.Version).Info("starting heatharmony")

	decimal.MarshalJSONWithoutQuotes = true

	app, err := app.New(config)
	if err != nil {
		return err
	}

	err = app.Start(ctx)
	if err != nil {
		return err
	}

	app.Wait()
	return nil
}
