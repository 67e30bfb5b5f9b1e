// Command simulator drives chat traffic against a running engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glooo/simulator"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// Flag variables.
var (
	verbose bool
	config  = simulator.DefaultConfig()
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var cmd = &cobra.Command{
	Use:   "simulator",
	Short: "Signs up users, befriends them and exchanges direct and group messages over websockets.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
		defer cancel()

		sim := simulator.NewSimulator(config, logger)
		if err := sim.Run(ctx); err != nil {
			return fmt.Errorf("simulation failed: %w", err)
		}

		m := sim.GetMetrics()
		logger.Info("simulation completed",
			"users", m.TotalUsers,
			"active_at_end", m.ActiveUsers,
			"friendships", m.Friendships,
			"groups", m.Groups,
			"direct_sent", m.DirectSent,
			"group_sent", m.GroupSent,
			"received", m.Received,
			"avg_latency", m.AverageLatency,
			"avg_delivery", m.AverageDelivery,
			"reconnects", m.Reconnects,
			"error_frames", m.ErrorFrames,
			"failed_requests", m.ErrorCount)
		return nil
	},
}

// init defines the flags.
func init() {
	flags := cmd.Flags()
	flags.StringVarP(&config.EngineURL, "url", "u", config.EngineURL, "Base URL of the engine.")
	flags.IntVarP(&config.NumUsers, "users", "n", config.NumUsers, "Number of simulated users.")
	flags.IntVar(&config.NumGroups, "groups", config.NumGroups, "Number of groups to create.")
	flags.IntVar(&config.GroupSize, "group-size", config.GroupSize, "Members picked per group.")
	flags.DurationVarP(&config.SimulationTime, "duration", "d", config.SimulationTime, "How long to drive traffic.")
	flags.Float64Var(&config.MessageFrequency, "rate", config.MessageFrequency, "Messages per connected user per minute.")
	flags.Float64Var(&config.GroupMessageShare, "group-share", config.GroupMessageShare, "Fraction of messages sent to groups.")
	flags.Float64Var(&config.DisconnectRate, "disconnect-rate", config.DisconnectRate, "Per-second chance a session drops.")
	flags.Float64Var(&config.ReconnectRate, "reconnect-rate", config.ReconnectRate, "Per-second chance an offline user reconnects.")
	flags.Float64Var(&config.ZipfS, "zipf", config.ZipfS, "Zipf exponent for picking group members (> 1).")
	flags.IntVar(&config.Workers, "workers", config.Workers, "Concurrent signups.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging.")
}
