package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/model"
)

var searchCmd = &cobra.Command{
	Use:   "search [<start> <end> <date>]",
	Short: "Searches itineraries between two districts",
	Long: "Searches itineraries between two districts on a date (YYYY-MM-DD). " +
		"Alternatively, --link takes a booking link query string such as " +
		"'start=A&end=C&date=2026-10-16'.",
	Args: cobra.RangeArgs(0, 3),
	RunE: search,
}

var (
	searchLink   string
	searchExpand int
	searchUser   string
)

func init() {
	searchCmd.Flags().StringVarP(&searchLink, "link", "", "", "Booking link query string")
	searchCmd.Flags().IntVarP(&searchExpand, "expand", "e", -1, "Print the stops of this schedule id")
	searchCmd.Flags().StringVarP(&searchUser, "user", "u", "", "Signed in user")
	rootCmd.AddCommand(searchCmd)
}

func search(cmd *cobra.Command, args []string) error {
	var initial model.BookingSession

	switch {
	case searchLink != "":
		params, err := url.ParseQuery(searchLink)
		if err != nil {
			return fmt.Errorf("invalid link: %w", err)
		}
		initial = timetable.DeriveInitialSession(params)
	case len(args) == 3:
		initial = model.BookingSession{From: args[0], To: args[1], Date: args[2]}
	case len(args) != 0:
		return fmt.Errorf("expected <start> <end> <date>")
	}

	cache, closeCache := buildCache()
	defer closeCache()
	client := buildDirectory(cache)

	opts := []timetable.SessionOption{}
	if searchUser != "" {
		opts = append(opts, timetable.WithUser(model.User{Username: searchUser}))
	}

	session := timetable.NewSession(log, client, client, model.BookingSession{}, opts...)
	defer session.Close()

	if err := session.Start(cmd.Context()); err != nil {
		return err
	}

	if !initial.Complete() {
		fmt.Println(timetable.MessageIncomplete)
		for _, option := range session.FromOptions() {
			fmt.Printf("  %s: %s\n", option.Code, option.Name)
		}
		return nil
	}

	if err := session.SetFrom(initial.From); err != nil {
		return err
	}
	if err := session.SetTo(initial.To); err != nil {
		return err
	}
	if err := session.SetDate(initial.Date); err != nil {
		return err
	}

	if err := session.Search(cmd.Context()); err != nil {
		if msg := session.Message(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return err
	}

	if session.State() == timetable.ResultsEmpty {
		fmt.Println(session.Message())
		return nil
	}

	if searchExpand >= 0 {
		if err := session.ToggleExpansion(model.ScheduleID(searchExpand)); err != nil {
			return err
		}
	}

	printResults(session)

	return nil
}

func printResults(session *timetable.Session) {
	expanded := session.Expanded()
	results := session.Snapshot().Results

	for i, summary := range session.Summaries() {
		fmt.Printf("%s (%d stations)\n", summary.RouteLabel, summary.StationsCount)
		if summary.TransferLabel != "" {
			fmt.Printf("  transfer at %s\n", summary.TransferLabel)
		}
		fmt.Printf("  economy %s, first class %s\n", summary.EconomyPrice, summary.FirstClassPrice)

		for _, sched := range results[i].Schedules {
			fmt.Printf("  #%d departs %s\n", sched.ID, timetable.ScheduleHeader(sched))
			if expanded == nil || *expanded != sched.ID {
				continue
			}

			for _, seg := range sched.Segments {
				fmt.Printf("    %s\n", seg.Line)
				for _, stop := range seg.Stops {
					departure := timetable.NoDeparture
					if stop.Departure != nil {
						departure = stop.Departure.String()
					}
					fmt.Printf("      %-12s arr %-8s dep %s\n", stop.District, stop.Arrival, departure)
				}
			}

			intent, err := session.Select(i, sched.ID)
			if err == nil {
				fmt.Printf("    book: /purchase?%s\n", intent.Query().Encode())
			}
		}
	}
}
