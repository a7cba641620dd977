package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hackgods/hospital-capacity-scheduling/internal/app"
	"github.com/hackgods/hospital-capacity-scheduling/internal/config"
	"github.com/hackgods/hospital-capacity-scheduling/internal/consultation"
	"github.com/hackgods/hospital-capacity-scheduling/internal/db"
	"github.com/hackgods/hospital-capacity-scheduling/internal/observability"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "schedctl",
		Short:        "Operate consultation schedules and bed banks",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(sortCmd())
	rootCmd.AddCommand(recurrenceCmd())
	rootCmd.AddCommand(bedsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, builds the backends and runs fn against them.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger("schedctl", cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = log.Logger.WithContext(ctx)

	a, err := app.Build(ctx, cfg, "schedctl")
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			observability.InitLogger("schedctl", cfg.Env, cfg.LogLevel)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}

func previewCmd() *cobra.Command {
	var (
		start, end string
		minutes    int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the slots a consultation window would produce",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			e, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			type slot struct {
				Index int       `json:"index"`
				Start time.Time `json:"start_time"`
				End   time.Time `json:"end_time"`
			}
			out := []slot{}
			for _, sl := range consultation.GenerateSlots(s.UTC(), e.UTC(), minutes) {
				out = append(out, slot{Index: sl.Index, Start: sl.StartTime, End: sl.EndTime})
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339)")
	cmd.Flags().IntVar(&minutes, "minutes", 30, "slot duration in minutes")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func nextCmd() *cobra.Command {
	var (
		anchor, frequency, zone string
		count                   int
	)

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Print the upcoming occurrences of a recurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := time.Parse(time.RFC3339, anchor)
			if err != nil {
				return fmt.Errorf("invalid --anchor: %w", err)
			}
			freq, err := consultation.ParseFrequency(frequency)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(zone)
			if err != nil {
				return fmt.Errorf("invalid --zone: %w", err)
			}

			out := make([]time.Time, 0, count)
			for i := 0; i < count; i++ {
				t, err = consultation.NextOccurrence(t, freq, loc)
				if err != nil {
					return err
				}
				out = append(out, t.In(loc))
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&anchor, "anchor", "", "series anchor (RFC3339)")
	cmd.Flags().StringVar(&frequency, "frequency", "weekly", "daily, weekly, monthly or yearly")
	cmd.Flags().StringVar(&zone, "zone", "Asia/Kolkata", "reference time zone")
	cmd.Flags().IntVar(&count, "count", 5, "how many occurrences to print")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one schedule refresh tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Consultations.RefreshSchedules(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func sortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <consultation-id>",
		Short: "Re-sort every slot queue of a consultation by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "consultation id")
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				c, err := a.Consultations.ForceSort(ctx, id)
				if err != nil {
					return err
				}
				log.Info().Str("consultation_id", c.ID.String()).Int("slots", len(c.Slots)).Msg("queues sorted")
				return nil
			})
		},
	}
}

func recurrenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Pause, resume or retime a recurring consultation",
	}

	update := func(use, short string, build func(args []string) (consultation.RecurrenceUpdate, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "consultation id")
				if err != nil {
					return err
				}
				upd, err := build(args)
				if err != nil {
					return err
				}
				return withApp(func(ctx context.Context, a *app.App) error {
					c, err := a.Consultations.UpdateRecurrence(ctx, id, upd)
					if err != nil {
						return err
					}
					return printJSON(c.Recurrence)
				})
			},
		}
	}

	cmd.AddCommand(update("pause <consultation-id>", "Stop materializing occurrences", func([]string) (consultation.RecurrenceUpdate, error) {
		paused := true
		return consultation.RecurrenceUpdate{Paused: &paused}, nil
	}))
	cmd.AddCommand(update("resume <consultation-id>", "Resume materializing occurrences", func([]string) (consultation.RecurrenceUpdate, error) {
		paused := false
		return consultation.RecurrenceUpdate{Paused: &paused}, nil
	}))
	cmd.AddCommand(update("frequency <consultation-id> <frequency>", "Change the series frequency", func(args []string) (consultation.RecurrenceUpdate, error) {
		if len(args) != 2 {
			return consultation.RecurrenceUpdate{}, fmt.Errorf("frequency is required")
		}
		f := consultation.Frequency(args[1])
		return consultation.RecurrenceUpdate{Frequency: &f}, nil
	}))

	return cmd
}

func bedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beds",
		Short: "Inspect and change department bed banks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <department-id>",
		Short: "Print beds, waitlist and open cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "department id")
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				d, err := a.Beds.Department(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <department-id> <count>",
		Short: "Append free beds and drain the waitlist into them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "department id")
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid count %q", args[1])
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				d, promoted, err := a.Beds.AddBeds(ctx, id, n)
				if err != nil {
					return err
				}
				log.Info().Int("beds", len(d.Beds)).Int("promoted", len(promoted)).Msg("beds added")
				return printJSON(promoted)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "release <department-id> <bed-index>",
		Short: "Free a bed, discharging its case and promoting the waitlist head",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "department id")
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid bed index %q", args[1])
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				upd, err := a.Beds.SetBedStatus(ctx, id, idx, false)
				if err != nil {
					return err
				}
				return printJSON(upd)
			})
		},
	})

	return cmd
}
