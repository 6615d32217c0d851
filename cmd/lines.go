package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"warpcorp.dev/timetable"
)

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Lists lines of the reference feed",
	Args:  cobra.NoArgs,
	RunE:  lines,
}

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Lists districts",
	Args:  cobra.NoArgs,
	RunE:  districts,
}

var remoteDistricts bool

func init() {
	districtsCmd.Flags().BoolVarP(&remoteDistricts, "remote", "r", false, "Ask the route search service instead of the reference feed")
	rootCmd.AddCommand(linesCmd)
	rootCmd.AddCommand(districtsCmd)
}

func lines(cmd *cobra.Command, args []string) error {
	schedule, err := LoadSchedule(cmd.Context())
	if err != nil {
		return err
	}

	lines, err := schedule.Lines()
	if err != nil {
		return err
	}

	for _, line := range lines {
		directions, err := schedule.Directions(line.Code)
		if err != nil {
			return err
		}
		for _, l := range directions {
			fmt.Printf("%s %s: %s\n", l.Code, l.Name, strings.Join(l.Districts, " - "))
		}
	}

	return nil
}

func districts(cmd *cobra.Command, args []string) error {
	var d timetable.DistrictDirectory

	if remoteDistricts {
		cache, closeCache := buildCache()
		defer closeCache()
		d = buildDirectory(cache)
	} else {
		schedule, err := LoadSchedule(cmd.Context())
		if err != nil {
			return err
		}
		d = schedule
	}

	districts, err := d.Districts(cmd.Context())
	if err != nil {
		return err
	}

	for _, district := range districts {
		fmt.Printf("%s: %s\n", district.Code, district.Name)
	}

	return nil
}
