package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore/password"
)

// NewHashPasswordCmd creates the hash-password subcommand. It prints a hash
// suitable for seeding an identity store by hand.
func NewHashPasswordCmd() *cobra.Command {
	var (
		cost      int
		algorithm string
	)

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a password for seeding an identity store",
		Long: `Hash a password with bcrypt (default) or argon2id. Without an
argument the password is read from the first line of standard input.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return oops.Code("INPUT_INVALID").Wrapf(err, "read password")
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return oops.Code("INPUT_INVALID").Errorf("password must not be empty")
			}

			hasher, err := newCLIHasher(algorithm, cost)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plain)
			if err != nil {
				return oops.Code("INPUT_INVALID").Wrapf(err, "hash password")
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", password.DefaultBcryptCost, "bcrypt cost")
	cmd.Flags().StringVar(&algorithm, "algorithm", "bcrypt", "hash algorithm (bcrypt, argon2id)")

	return cmd
}

func newCLIHasher(algorithm string, cost int) (password.Hasher, error) {
	switch algorithm {
	case "bcrypt":
		h, err := password.NewBcrypt(password.BcryptConfig{Cost: cost})
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("cost", cost).Wrap(err)
		}
		return h, nil
	case "argon2id":
		h, err := password.NewArgon2(password.DefaultArgon2Config())
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrap(err)
		}
		return h, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("algorithm", algorithm).Errorf("unknown algorithm %q", algorithm)
	}
}
