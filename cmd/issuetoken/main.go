// Command issuetoken prints a fresh secret key, or an access token signed with the given key.
//
//	issuetoken                               # new secret key
//	issuetoken -s <secret> -u <user uuid>    # access token for the user
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletmart/internal/service/auth/tokenmanager"
)

func run(args []string) (string, error) {
	var (
		secret string
		userID string
		ttl    time.Duration
	)

	fs := pflag.NewFlagSet("issuetoken", pflag.ContinueOnError)
	fs.StringVarP(&secret, "secret-key", "s", "", "Secret key to sign token with")
	fs.StringVarP(&userID, "user", "u", "", "User id the token is issued for")
	fs.DurationVarP(&ttl, "ttl", "t", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	if userID == "" {
		return tokenmanager.GenerateSecret()
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}

	m, err := tokenmanager.New(tokenmanager.Config{SecretKey: secret, AccessTTL: ttl})
	if err != nil {
		return "", err
	}

	token, err := m.Issue(id)
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

func main() {
	out, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(out)
}
