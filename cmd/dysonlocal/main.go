// Command dysonlocal connects to the configured Dyson devices on the local
// network and serves their state over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/illmade-knight/go-dysonlocal/pkg/cache"
	"github.com/illmade-knight/go-dysonlocal/pkg/cloud"
	"github.com/illmade-knight/go-dysonlocal/pkg/device"
	"github.com/illmade-knight/go-dysonlocal/pkg/discovery"
	"github.com/illmade-knight/go-dysonlocal/pkg/factory"
	"github.com/illmade-knight/go-dysonlocal/pkg/microservice"
	"github.com/illmade-knight/go-dysonlocal/pkg/mqttconverter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const createConcurrency = 4

func main() {
	configPath := flag.String("config", os.Getenv("DYSON_CONFIG"), "path to the host configuration file")
	loginEmail := flag.String("login", "", "log in to the cloud account with this email and print the token")
	flag.Parse()

	cfg, err := microservice.LoadHostConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load host configuration.")
	}
	logger := newLogger(cfg.BaseConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *loginEmail != "" {
		if err := runLogin(ctx, cfg.Cloud, *loginEmail, os.Stdin, os.Stdout, logger); err != nil {
			logger.Fatal().Err(err).Msg("Cloud login failed.")
		}
		return
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Host stopped with error.")
	}
}

func newLogger(cfg microservice.BaseConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Str("service", cfg.ServiceName).Logger()
}

func run(ctx context.Context, cfg *microservice.HostConfig, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := device.NewMetrics(reg)
	if err != nil {
		return err
	}
	sessionCfg := device.LoadConfigFromEnv()
	sessionOpts := []device.Option{
		device.WithMQTTConfig(mqttconverter.LoadMQTTClientConfigFromEnv()),
		device.WithMetrics(metrics),
	}

	discoveryCfg := discovery.LoadConfigFromEnv()
	book, err := discovery.NewAddressBook(ctx, discoveryCfg.AddressTTL, cache.LoadRedisConfigFromEnv(discovery.AddressBookKeyPrefix), logger)
	if err != nil {
		return fmt.Errorf("failed to open address book: %w", err)
	}
	resolver, err := discovery.NewResolver(discoveryCfg, discovery.NewZeroconfBrowser(discoveryCfg.Domain, logger), book, logger)
	if err != nil {
		return err
	}
	resolver.Seed(cfg.ConfiguredAddresses())
	if err := resolver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	defer resolver.Stop()

	deviceFactory, err := factory.NewFactory(factory.LoadConfigFromEnv(), sessionCfg, nil, resolver, logger, sessionOpts...)
	if err != nil {
		return err
	}
	defer deviceFactory.Close()

	manager := microservice.NewDeviceManager(cfg.Manager, resolver, logger,
		microservice.WithCapabilityWatcher(factory.WatchCapabilities))
	if err := addConfiguredDevices(ctx, cfg.Devices, deviceFactory, manager, logger); err != nil {
		return err
	}
	if cfg.Cloud != nil && cfg.Cloud.Token != "" {
		addCloudDevices(ctx, cfg.Cloud, deviceFactory, manager, logger)
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, reg)
	microservice.NewStatusHandler(manager, logger).RegisterRoutes(server.Router())
	if err := server.Start(); err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	manager.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// addConfiguredDevices builds a session per configured device. Profiles are
// probed concurrently; a device whose type cannot be resolved is skipped.
func addConfiguredDevices(ctx context.Context, configured []microservice.DeviceConfig, deviceFactory *factory.Factory, manager *microservice.DeviceManager, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(createConcurrency)
	for _, d := range configured {
		g.Go(func() error {
			s, err := deviceFactory.CreateWithHost(gctx, d.Identity(), d.Host)
			if errors.Is(err, factory.ErrUnknownDeviceType) {
				logger.Error().Err(err).Str("serial", d.Serial).Msg("Skipping device of unknown type.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("device %s: %w", d.Serial, err)
			}
			return manager.Add(s, d.Name, d.Host)
		})
	}
	return g.Wait()
}

func addCloudDevices(ctx context.Context, cfg *microservice.CloudConfig, deviceFactory *factory.Factory, manager *microservice.DeviceManager, logger zerolog.Logger) {
	account, err := cloud.NewAccount(cloudConfig(cfg), &cloud.AuthInfo{Account: cfg.Email, Token: cfg.Token, TokenType: "Bearer"}, nil, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid cloud configuration.")
		return
	}
	sessions, err := deviceFactory.FromCloud(ctx, account)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to import devices from cloud account.")
		return
	}
	for _, s := range sessions {
		if err := manager.Add(s, "", ""); err != nil && !errors.Is(err, microservice.ErrDuplicateDevice) {
			logger.Warn().Err(err).Str("serial", s.Serial()).Msg("Failed to add cloud device.")
		}
	}
}

func cloudConfig(cfg *microservice.CloudConfig) *cloud.Config {
	out := cloud.DefaultConfig()
	if cfg == nil {
		return out
	}
	switch {
	case cfg.BaseURL != "":
		out.BaseURL = cfg.BaseURL
	case cfg.China:
		out.BaseURL = cloud.ChinaBaseURL
	}
	if cfg.Country != "" {
		out.Country = cfg.Country
	}
	return out
}
