package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAdminsCmd(flags *dbFlags, open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Manage admin grants",
	}

	grant := &cobra.Command{
		Use:   "grant <userId>",
		Short: "Grant the admin role to a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userIDArg(args[0])
			if err != nil {
				return err
			}
			db, err := open(*flags)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.GrantAdmin(cmd.Context(), userID); err != nil {
				return fmt.Errorf("grant admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted admin to %s\n", userID)
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <userId>",
		Short: "Remove the admin grant of a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userIDArg(args[0])
			if err != nil {
				return err
			}
			db, err := open(*flags)
			if err != nil {
				return err
			}
			defer db.Close()
			removed, err := db.RevokeAdmin(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("revoke admin: %w", err)
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s had no admin grant\n", userID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked admin from %s\n", userID)
			return nil
		},
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List admin grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(*flags)
			if err != nil {
				return err
			}
			defer db.Close()
			grants, err := db.ListAdminGrants(cmd.Context())
			if err != nil {
				return fmt.Errorf("list admins: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(grants)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER ID\tGRANTED AT")
			for _, g := range grants {
				fmt.Fprintf(w, "%s\t%s\n", g.UserID, g.CreatedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")

	cmd.AddCommand(grant, revoke, list)
	return cmd
}

func userIDArg(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.New("userId must not be empty")
	}
	return id, nil
}
