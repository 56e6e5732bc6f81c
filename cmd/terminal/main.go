// Command terminal runs at a workstation with a fingerprint reader.
//
//	terminal scan                                  unattended check-in station
//	terminal enroll -user ID -finger DEDO          enroll one finger (needs an admin login)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zaqqye/inhouse_attendance/internal/apiclient"
	"github.com/zaqqye/inhouse_attendance/internal/config"
	"github.com/zaqqye/inhouse_attendance/internal/enrollment"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
	"github.com/zaqqye/inhouse_attendance/internal/models"
	"github.com/zaqqye/inhouse_attendance/internal/reader"
	"github.com/zaqqye/inhouse_attendance/internal/terminal"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: terminal scan | terminal enroll -user ID -finger DEDO [-email E -password P]")
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadTerminal()
	if err != nil {
		slog.Error("Invalid configuration", logging.ErrAttr(err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := apiclient.New(cfg.ServerURL, cfg.OTPSecret)
	client.InHouseID = cfg.InHouseID
	hw := reader.NewHTTPReader(cfg.ReaderURL, cfg.CaptureWindow)

	switch os.Args[1] {
	case "scan":
		err = scan(ctx, cfg, hw, client, logger)
	case "enroll":
		err = enroll(ctx, os.Args[2:], hw, client, logger)
	default:
		usage()
	}
	if err != nil {
		logger.Error("Terminal stopped", logging.ErrAttr(err))
		os.Exit(1)
	}
}

func scan(ctx context.Context, cfg *config.TerminalConfig, hw *reader.HTTPReader, client *apiclient.Client, logger *slog.Logger) error {
	loop := terminal.NewLoop(
		func(ctx context.Context) reader.Capability { return reader.Detect(ctx, hw) },
		client,
		func(r terminal.Result) {
			if r.Success {
				logger.Info(r.Message, "user", r.User, "action", r.Action, "time", r.Time)
				return
			}
			logger.Warn(r.Message)
		},
		logger,
	)
	loop.PollInterval = cfg.PollInterval
	loop.SuccessDwell = cfg.SuccessDwell
	loop.FailureDwell = cfg.FailureDwell

	logger.Info("Terminal scanning", "server", cfg.ServerURL, "reader", cfg.ReaderURL, "inHouseID", cfg.InHouseID)
	return loop.Run(ctx)
}

func enroll(ctx context.Context, args []string, hw *reader.HTTPReader, client *apiclient.Client, logger *slog.Logger) error {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	var (
		userID   = fs.String("user", "", "ID of the user to enroll")
		finger   = fs.String("finger", "", "finger to enroll, e.g. indice_derecho")
		email    = fs.String("email", os.Getenv("TERMINAL_ADMIN_EMAIL"), "administrator email")
		password = fs.String("password", os.Getenv("TERMINAL_ADMIN_PASSWORD"), "administrator password")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		fs.Usage()
		return fmt.Errorf("-user is required")
	}

	if err := client.Login(ctx, *email, *password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	flow := enrollment.NewFlow(reader.Detect(ctx, hw), client, *userID, logger)
	summary, err := flow.Enroll(ctx, models.Finger(*finger))
	if err != nil {
		return err
	}
	logger.Info("Huella registrada exitosamente", "biometricID", summary.ID, "finger", summary.Finger.Label(), "quality", summary.Quality)
	return nil
}
