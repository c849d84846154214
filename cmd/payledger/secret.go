package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/payledger/internal/secrets"
)

func secretCmd() *cobra.Command {
	var (
		dir      string
		fileOnly bool
	)
	open := func() (*secrets.Store, error) {
		return secrets.Open(secrets.Options{
			Dir:      dir,
			Password: os.Getenv("PAYLEDGER_KEYRING_PASSWORD"),
			FileOnly: fileOnly,
		})
	}

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage gateway credentials in the OS keyring",
		Long: `Manage secrets in the OS keyring.

The gateway API key is read from "gateway-test" or "gateway-live"
depending on gateway.testmode when no key is configured.

Examples:
  payledger secret set gateway-test test_xxx
  payledger secret get gateway-test
  payledger secret delete gateway-live`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "keyring directory for the file backend")
	cmd.PersistentFlags().BoolVar(&fileOnly, "file", false, "use the encrypted file backend only")

	cmd.AddCommand(&cobra.Command{
		Use:   "set [name] [value]",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			if err := store.Set(args[0], strings.TrimSpace(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get [name]",
		Short: "Print a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			v, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [name]",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			names, err := store.Names()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	})
	return cmd
}
