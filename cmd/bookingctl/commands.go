package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/medibook/internal/appointments"
	httpmiddleware "github.com/wolfman30/medibook/internal/http/middleware"
)

// app is what every subcommand operates on.
type app struct {
	store   appointments.Store
	service *appointments.Service
	loc     *time.Location
	secret  string
	now     func() time.Time
	close   func()
}

type opener func(ctx context.Context, logLevel string) (*app, error)

func newRootCmd(open opener) *cobra.Command {
	var (
		logLevel string
		current  *app
	)

	cmd := &cobra.Command{
		Use:   "bookingctl",
		Short: "Front-desk administration for the clinic booking service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), logLevel)
			if err != nil {
				return err
			}
			if a.now == nil {
				a.now = time.Now
			}
			if a.loc == nil {
				a.loc = time.UTC
			}
			current = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil && current.close != nil {
				current.close()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	get := func() *app { return current }
	cmd.AddCommand(
		newSeedCmd(get),
		newConfirmCmd(get),
		newCancelCmd(get),
		newVisitedCmd(get),
		newTodayCmd(get),
		newTokenCmd(get),
	)
	return cmd
}

type seedDoctor struct {
	name       string
	start, end string
	maxPerDay  int
	bio        string
	specialty  string
}

var seedSpecialties = []string{"Cardiology", "Dermatology", "Orthopedics", "Pediatrics", "General Medicine"}

var seedDoctors = []seedDoctor{
	{"Dr. Meera Rao", "09:00", "13:00", 8, "Interventional cardiologist with 15 years of practice.", "Cardiology"},
	{"Dr. Arjun Shah", "14:00", "18:00", 8, "Heart failure and hypertension clinic lead.", "Cardiology"},
	{"Dr. Kavya Iyer", "10:00", "16:00", 10, "Treats acne, eczema and pigmentation disorders.", "Dermatology"},
	{"Dr. Rohan Mehta", "09:00", "15:00", 6, "Sports injuries and joint replacement.", "Orthopedics"},
	{"Dr. Ananya Das", "09:00", "17:00", 12, "Child health and vaccinations.", "Pediatrics"},
	{"Dr. Vikram Nair", "08:00", "20:00", 20, "", "General Medicine"},
}

// newSeedCmd loads demo reference data. Rows that already exist by name are
// left untouched, so seed can be rerun.
func newSeedCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo specialties and doctors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()
			created := 0
			err := a.store.InTx(ctx, func(q appointments.Queries) error {
				ids := make(map[string]int64, len(seedSpecialties))
				for _, name := range seedSpecialties {
					spec, err := q.FindSpecialtyByName(ctx, name)
					if errors.Is(err, appointments.ErrNotFound) {
						spec, err = q.CreateSpecialty(ctx, name)
					}
					if err != nil {
						return fmt.Errorf("specialty %s: %w", name, err)
					}
					ids[name] = spec.ID
				}
				for _, d := range seedDoctors {
					existing, err := q.ListDoctorsBySpecialty(ctx, ids[d.specialty], false)
					if err != nil {
						return err
					}
					if hasDoctor(existing, d.name) {
						continue
					}
					start, err := appointments.ParseTimeOfDay(d.start)
					if err != nil {
						return err
					}
					end, err := appointments.ParseTimeOfDay(d.end)
					if err != nil {
						return err
					}
					if _, err := q.CreateDoctor(ctx, appointments.NewDoctor{
						Name:         d.name,
						StartTime:    start,
						EndTime:      end,
						MaxPerDay:    d.maxPerDay,
						Bio:          d.bio,
						SpecialtyIDs: []int64{ids[d.specialty]},
					}); err != nil {
						return fmt.Errorf("doctor %s: %w", d.name, err)
					}
					created++
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d specialties, %d new doctors\n", len(seedSpecialties), created)
			return nil
		},
	}
}

func hasDoctor(list []appointments.Doctor, name string) bool {
	for _, d := range list {
		if d.Name == name {
			return true
		}
	}
	return false
}

func newConfirmCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm a tentative appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			appt, err := get().service.Confirm(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %d confirmed for %s\n", appt.ID, appt.StartTime.In(get().loc).Format(time.RFC1123))
			return nil
		},
	}
}

func newCancelCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an unconfirmed appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := get().service.Cancel(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %d canceled\n", id)
			return nil
		},
	}
}

func newVisitedCmd(get func() *app) *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "visited <id>",
		Short: "Mark an appointment as visited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			appt, err := get().service.MarkVisited(cmd.Context(), id, !unset)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appointment %d visited=%t\n", appt.ID, appt.Visited)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "clear the visited flag instead")
	return cmd
}

func newTodayCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "List today's appointments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			list, err := a.service.Today(cmd.Context(), a.now())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tPATIENT\tDOCTOR\tCONFIRMED\tVISITED")
			for _, appt := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\t%t\n",
					appt.ID, appt.StartTime.In(a.loc).Format("15:04"), appt.UserName, appt.DoctorID, appt.Confirmed, appt.Visited)
			}
			return w.Flush()
		},
	}
}

func newTokenCmd(get func() *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a front-desk token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			token, err := httpmiddleware.IssueAdminToken(a.secret, subject, ttl, a.now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "front-desk", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid appointment id %q", s)
	}
	return id, nil
}
