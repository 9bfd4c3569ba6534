// token mints a bearer token for the seat booking API, for local testing
// against a server started with JWT_SECRET.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/iliyamo/seat-booking/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		secret string
		userID string
		role   string
		ttl    time.Duration
	)
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flags.StringVarP(&secret, "secret", "s", os.Getenv("JWT_SECRET"), "HS256 signing secret (default $JWT_SECRET)")
	flags.StringVarP(&userID, "user", "u", "", "user id placed in the sub claim")
	flags.StringVarP(&role, "role", "r", "CUSTOMER", "role claim: CUSTOMER or ADMIN")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if secret == "" {
		return errors.New("--secret or JWT_SECRET is required")
	}
	if userID == "" {
		return errors.New("--user is required")
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	tok, err := utils.NewAccessToken(secret, userID, role, ttl)
	if err != nil {
		return errors.Wrap(err, "sign token")
	}
	fmt.Println(tok.Token)
	return nil
}
