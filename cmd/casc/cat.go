package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/casc"
)

var catKey bool

var catCmd = &cobra.Command{
	Use:   "cat <path>...",
	Short: "Write file contents to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		for _, arg := range args {
			var r io.Reader
			if catKey {
				key, err := casc.ParseEKey(arg)
				if err != nil {
					return err
				}
				st, err := s.OpenEncodingKey(key)
				if err != nil {
					return fmt.Errorf("opening %s: %w", key, err)
				}
				r = st
			} else {
				st, err := s.OpenFile(arg)
				if err != nil {
					return err
				}
				r = st
			}

			if _, err := io.Copy(os.Stdout, r); err != nil {
				return fmt.Errorf("reading %s: %w", arg, err)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVar(&catKey, "ekey", false, "arguments are hex encoding keys instead of paths")
}
