package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/patternkit/patternkit/pkg/hub"
)

func tokenCmd(flags *globalFlags) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a peer token signed with auth.secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := hub.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, overrides auth.token_ttl; 0 never expires")
	return cmd
}
