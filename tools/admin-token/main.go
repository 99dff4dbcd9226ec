// Command admin-token prints a bearer token for the booking admin API, signed
// with the same ADMIN_JWT_SECRET the service verifies against.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/proofline/booking/libs/auth"
	"github.com/proofline/booking/libs/config"
)

func main() {
	var (
		subject = flag.String("sub", "operator", "token subject")
		org     = flag.String("org", "", "organization slug the owner may manage")
		role    = flag.String("role", auth.RoleOwner, "owner or admin")
		ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	token, err := issue(*subject, *org, *role, *ttl)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(token)
}

func issue(subject, org, role string, ttl time.Duration) (string, error) {
	secret, err := config.RequiredString("ADMIN_JWT_SECRET")
	if err != nil {
		return "", err
	}
	org = strings.ToLower(strings.TrimSpace(org))
	switch role {
	case auth.RoleAdmin:
	case auth.RoleOwner:
		if org == "" {
			return "", fmt.Errorf("-org is required for role %s", role)
		}
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("-ttl must be positive")
	}
	return auth.SignHS256(subject, org, role, secret, ttl)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
