package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/proxsuit/internal/remap"
)

var (
	remapMean   float64
	remapStd    float64
	remapMax    float64
	remapInvert bool
)

var remapCmd = &cobra.Command{
	Use:   "remap",
	Short: "Print the remap table for given statistics",
	Long:  "Builds the nine-class remap table from a zonal mean, standard deviation and maximum distance without touching any layer.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tbl, err := remap.Build(remap.Params{
			Mean:        remapMean,
			StdDev:      remapStd,
			MaxDistance: remapMax,
			Invert:      remapInvert,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
		return nil
	},
}

func init() {
	f := remapCmd.Flags()
	f.Float64Var(&remapMean, "mean", 0, "zonal mean distance")
	f.Float64Var(&remapStd, "std", 0, "zonal standard deviation")
	f.Float64Var(&remapMax, "max", 0, "maximum distance in the raster")
	f.BoolVar(&remapInvert, "invert", false, "flip classes")
	_ = remapCmd.MarkFlagRequired("mean")
	_ = remapCmd.MarkFlagRequired("std")
	_ = remapCmd.MarkFlagRequired("max")
	rootCmd.AddCommand(remapCmd)
}
