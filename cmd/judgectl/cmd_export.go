package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"judgebench/internal/app"
)

func newExportCommand(open opener) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload the filtered results as CSV to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ff.filters()
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(a *app.App) error {
				ref, err := a.Results.Export(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}
	ff.register(cmd)
	return cmd
}

func newFetchCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch REF",
		Short: "Print an exported object (s3://bucket/key) to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.App) error {
				if a.Objects == nil {
					return errors.New("object storage is not configured (set MINIO_ENDPOINT)")
				}
				body, err := a.Objects.Open(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer body.Close()
				_, err = io.Copy(cmd.OutOrStdout(), body)
				return err
			})
		},
	}
}
