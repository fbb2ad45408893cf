package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marminbh/discourse-autoreply/internal/logger"
	"github.com/marminbh/discourse-autoreply/internal/service"
)

func newCannedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "canned",
		Short: "print the canned response the worker would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync(log)

			svc, err := service.NewReplyService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			template, err := svc.Templates.Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), template)
			return nil
		},
	}
}
