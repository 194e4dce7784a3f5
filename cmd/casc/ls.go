package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/casc/internal/storage"
	"github.com/jchantrell/casc/internal/utils"
)

var (
	lsLocalOnly bool
	lsLong      bool
)

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List files of the root",
	Long: `List walks the root below dir, or everything when dir is omitted, and
prints every file found. Both '/' and '\' separate path components. Files
whose names are not valid slash separated paths are not listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStorage()
		if err != nil {
			return err
		}
		defer s.Close()

		root := "."
		if len(args) > 0 {
			root = walkRoot(args[0])
		}

		return fs.WalkDir(s.FS(), root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				return err
			}
			f, ok := fi.Sys().(storage.FileInfo)
			if !ok {
				return fmt.Errorf("%s: no storage file info", p)
			}
			if lsLocalOnly && !f.Local {
				return nil
			}

			if !lsLong {
				fmt.Println(f.Name)
				return nil
			}

			local := "local"
			if !f.Local {
				local = "remote"
			}
			fmt.Printf("%-6s %12s %12s %3d  %s\n", local, utils.Bytes(f.Size), utils.Bytes(f.StoredSize), f.Spans, f.Name)
			return nil
		})
	},
}

// walkRoot turns a storage path argument into an fs.FS path
func walkRoot(arg string) string {
	root := strings.Trim(strings.ReplaceAll(arg, `\`, "/"), "/")
	if root == "" {
		return "."
	}
	return root
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVar(&lsLocalOnly, "local", false, "only list files with local data")
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show locality, sizes and span count")
}
