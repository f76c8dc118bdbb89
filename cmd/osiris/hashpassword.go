package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

var hashCost int

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the [server.http] config section",
	Long: "Read a password and print its bcrypt hash, suitable for the\n" +
		"password field in the [server.http] section of osiris.toml.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
			return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if len(password) == 0 {
			return fmt.Errorf("empty password")
		}
		hash, err := bcrypt.GenerateFromPassword(password, hashCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

// readPassword prompts twice on a terminal, or reads a single line when
// stdin is a pipe.
func readPassword(cmd *cobra.Command) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("passwords do not match")
	}
	return first, nil
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost factor")
	rootCmd.AddCommand(hashPasswordCmd)
}
