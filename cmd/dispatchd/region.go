package main

import (
	"encoding/json"
	"fmt"

	"civic-dispatch/core/appbootstrap"
	"civic-dispatch/core/dispatch"

	"github.com/spf13/cobra"
)

var (
	regionLat float64
	regionLon float64
)

var regionCmd = &cobra.Command{
	Use:   "region",
	Short: "Resolve a coordinate to a region label",
	RunE:  lookupRegion,
}

func init() {
	regionCmd.Flags().Float64Var(&regionLat, "lat", 0, "latitude")
	regionCmd.Flags().Float64Var(&regionLon, "lon", 0, "longitude")
	_ = regionCmd.MarkFlagRequired("lat")
	_ = regionCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(regionCmd)
}

func lookupRegion(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := appbootstrap.NewResolver(cfg, logger, nil)
	region := resolver.Resolve(cmd.Context(), &dispatch.Coordinates{Lat: regionLat, Lon: regionLon})
	out, err := json.MarshalIndent(region, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
