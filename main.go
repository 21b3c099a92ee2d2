package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailpool/api/middleware"
	"github.com/customeros/mailpool/config"
	"github.com/customeros/mailpool/internal/logger"
	"github.com/customeros/mailpool/server"
	"github.com/customeros/mailpool/services"
)

func main() {
	app := &cli.App{
		Name:  "mailpool",
		Usage: "pooled IMAP/SMTP access for automated mail handling",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:  "check",
				Usage: "Scan the inbox once for unread mail from trusted senders and print it as JSON",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "sender",
						Usage: "trusted sender address, overrides TRUSTED_SENDERS (repeatable)",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 2 * time.Minute,
						Usage: "overall time limit for the scan",
					},
				},
				Action: runCheck,
			},
			{
				Name:  "stats",
				Usage: "Print pool, cache and performance stats from a running server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "server base URL (defaults to http://localhost:$PORT)",
					},
				},
				Action: runStats,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is empty")
	}
	return cfg, nil
}

func runServer(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func runCheck(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	defer appLogger.Sync()

	svcs := services.InitServices(cfg, appLogger)
	if svcs.ConfigErr != nil {
		return svcs.ConfigErr
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	if err := svcs.Start(ctx); err != nil {
		return err
	}
	defer svcs.Stop()

	emails, err := svcs.MailService.CheckTrustedEmails(ctx, svcs.TrustedSenders(c.StringSlice("sender")))
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(emails)
}

func runStats(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr := c.String("addr")
	if addr == "" {
		addr = "http://localhost:" + cfg.AppConfig.APIPort
	}

	req, err := http.NewRequestWithContext(c.Context, http.MethodGet, strings.TrimRight(addr, "/")+"/v1/stats", nil)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.APIKeyHeader, cfg.AppConfig.APIKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("stats request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stats request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	_, err = fmt.Fprintln(c.App.Writer, string(body))
	return err
}
