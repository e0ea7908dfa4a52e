package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/nanodiscover/internal/livetail"
)

var (
	tailURL       string
	tailTenant    string
	tailLimit     int
	tailToken     string
	tailReconnect time.Duration
)

var tailCmd = &cobra.Command{
	Use:   "tail [query]",
	Short: "Follow a live stream and print documents as JSON lines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		opts := livetail.Options{
			BaseURL:           cfg.LiveTail.BaseURL,
			WebsocketURL:      cfg.LiveTail.WebsocketURL,
			TenantID:          cfg.LiveTail.TenantID,
			ReconnectInterval: cfg.LiveTail.ReconnectInterval,
			Logger:            log,
		}
		if tailURL != "" {
			opts.BaseURL, opts.WebsocketURL = tailURL, ""
		}
		if tailTenant != "" {
			opts.TenantID = tailTenant
		}
		if tailReconnect > 0 {
			opts.ReconnectInterval = tailReconnect
		}
		if tailToken != "" {
			opts.Dialer = livetail.WebsocketDialer{
				Header: http.Header{"Authorization": []string{"Bearer " + tailToken}},
			}
		}

		q := livetail.Query{Query: cfg.LiveTail.Query, Limit: cfg.LiveTail.Limit}
		if len(args) == 1 {
			q.Query = args[0]
		}
		if tailLimit > 0 {
			q.Limit = tailLimit
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sub, err := livetail.New(opts).Subscribe(ctx, q)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		enc := json.NewEncoder(cmd.OutOrStdout())
		for ev := range sub.Events() {
			switch ev.Type {
			case livetail.EventFrame:
				for _, d := range ev.Frame.Documents() {
					if err := enc.Encode(d); err != nil {
						return err
					}
				}
			case livetail.EventError:
				fmt.Fprintln(os.Stderr, "tail:", ev.Err)
			case livetail.EventState:
				log.Debug("state", "state", ev.State)
			}
		}
		return nil
	},
}

func init() {
	tailCmd.Flags().StringVar(&tailURL, "url", "", "server base URL, overrides livetail.base_url")
	tailCmd.Flags().StringVar(&tailTenant, "tenant", "", "tenant id")
	tailCmd.Flags().IntVar(&tailLimit, "limit", 0, "backlog size requested on subscribe")
	tailCmd.Flags().StringVar(&tailToken, "token", "", "bearer token")
	tailCmd.Flags().DurationVar(&tailReconnect, "reconnect", 0, "delay between reconnect attempts")
}
