package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	mte "github.com/harveysanders/meanstoend"
	"github.com/harveysanders/meanstoend/config"
	"github.com/harveysanders/meanstoend/inmem"
	mlog "github.com/harveysanders/meanstoend/log"
	"github.com/harveysanders/meanstoend/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	level, err := mlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		logFile, err := os.Create(cfg.LogFile)
		if err != nil {
			return err
		}
		defer logFile.Close()

		logOut = mlog.SustainedMultiWriter(os.Stderr, logFile)
	}
	logger := mlog.New(logOut, level).With("name", "MeansToEndServer")

	newStore, err := storeFunc(cfg.Store)
	if err != nil {
		return err
	}

	srv := mte.NewServer(logger, mte.ServerConfig{IdleTimeout: cfg.IdleTimeout}, newStore)
	srvErr := make(chan error, 1)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "store", cfg.Store)
		srvErr <- srv.ListenAndServe(cfg.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := srv.Close(); err != nil {
			return fmt.Errorf("srv.Close: %w", err)
		}
		if err := <-srvErr; !errors.Is(err, mte.ErrServerClosed) {
			return err
		}
		return nil

	case err := <-srvErr:
		return err
	}
}

func storeFunc(name string) (mte.StoreFunc, error) {
	switch name {
	case config.StoreMemory:
		return inmem.Open, nil
	case config.StoreSQLite:
		return sqlite.OpenSession, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, name)
	}
}
