package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/insightmesh"
	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/server"
	"github.com/hupe1980/insightmesh/telemetry"
)

const cliSession = "cli"

func loadMesh(cfgPath string) (*insightmesh.InsightMesh, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	m, err := insightmesh.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

func readTable(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dataset.ReadCSV(f)
}

func newAskCmd(cfgPath *string) *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question about a CSV file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadMesh(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			tbl, err := readTable(dataPath)
			if err != nil {
				return err
			}
			if err := m.LoadDataset(cliSession, tbl, dataPath); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res := m.Ask(ctx, cliSession, strings.Join(args, " "))
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "CSV file to analyze")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newPlanCmd(cfgPath *string) *cobra.Command {
	var dataPath string
	var format string
	cmd := &cobra.Command{
		Use:   "plan [question]",
		Short: "Show how a question would be routed without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := loadMesh(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			var tbl *dataset.Table
			if dataPath != "" {
				if tbl, err = readTable(dataPath); err != nil {
					return err
				}
			}
			out := m.Plan(cliSession, strings.Join(args, " "), tbl)

			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), out)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "optional CSV file for data aware routing")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			m, err := insightmesh.FromConfig(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Logger())
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			if addr == "" {
				addr = cfg.Server.Addr()
			}
			srv := server.New(m.Orchestrator(), m.Sessions(), m.StatusRegistry(), m.Agents(), func(o *server.Options) {
				o.Addr = addr
				o.CORSOrigins = cfg.Server.CORSOrigins
				o.Logger = requestLogger(cfg.Log.Level)
				o.Artifacts = m.Artifacts()
			})
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.host and server.port")
	return cmd
}

func requestLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("component", "http").Logger().Level(lvl)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
