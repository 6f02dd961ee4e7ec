package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patternkit/patternkit/pkg/host"
	"github.com/patternkit/patternkit/pkg/store"
)

func exportCmd(flags *globalFlags) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "export <project-id> <file>",
		Short: "Write a stored project snapshot to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			data, err := st.LoadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			local, err := host.NewLocal(root)
			if err != nil {
				return err
			}
			if err := local.WriteFile(cmd.Context(), args[1], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "Directory the file must be inside of")
	return cmd
}
