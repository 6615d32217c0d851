package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"warpcorp.dev/timetable/clock"
	"warpcorp.dev/timetable/model"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <line_code> [departure]",
	Short: "Prints generated timetables of a line",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  schedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func schedule(cmd *cobra.Command, args []string) error {
	s, err := LoadSchedule(cmd.Context())
	if err != nil {
		return err
	}

	var tables []*model.GeneratedTimetable
	if len(args) == 2 {
		base, err := clock.Parse(args[1])
		if err != nil {
			return err
		}
		table, err := s.Timetable(args[0], base)
		if err != nil {
			return err
		}
		tables = append(tables, table)
	} else {
		tables, err = s.Timetables(args[0])
		if err != nil {
			return err
		}
	}

	if len(tables) == 0 {
		fmt.Printf("%s has no scheduled departures\n", args[0])
		return nil
	}

	for _, table := range tables {
		fmt.Printf("%s departing %s\n", table.LineCode, table.BaseDeparture.Wall())
		for _, stop := range table.Stops {
			departure := "-"
			if stop.Departure != nil {
				departure = stop.Departure.Wall()
			}
			fmt.Printf("  %-12s arr %-14s dep %s\n", stop.District, stop.Arrival.Wall(), departure)
		}
	}

	return nil
}
