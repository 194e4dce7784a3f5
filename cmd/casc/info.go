package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/utils"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the active build and storage statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		var local, size, stored int64
		files := s.Files()
		for _, f := range files {
			size += f.Size
			if f.Local {
				local++
				stored += f.StoredSize
			}
		}

		build := s.Build()
		fmt.Printf("Build:         %s\n", build.Name)
		fmt.Printf("Version:       %s (%s)\n", build.Version, build.Branch)
		if build.Number > 0 {
			fmt.Printf("Build number:  %d\n", build.Number)
		}
		fmt.Printf("Build key:     %s\n", build.Key)
		fmt.Printf("Root format:   %s\n", s.RootFormat())
		fmt.Printf("Archives:      %d\n", s.ArchiveCount())
		fmt.Printf("Index entries: %s\n", utils.Number(int64(s.IndexEntries())))
		fmt.Printf("Files:         %s (%s local)\n", utils.Number(int64(len(files))), utils.Number(local))
		fmt.Printf("Content size:  %s\n", utils.Bytes(size))
		fmt.Printf("Stored size:   %s\n", utils.Bytes(stored))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
