// Command token prints a signed bearer token for local testing against the api.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/notarization-api/internal/config"
	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/infrastructure/auth/jwt"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	userID := flag.String("user", "", "user id (sub claim)")
	email := flag.String("email", "", "user email")
	role := flag.String("role", string(domain.RoleUser), "user, notary, secretary or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	identity := domain.Identity{UserID: *userID, Email: *email, Role: domain.Role(*role)}
	if identity.UserID == "" || !identity.Role.Valid() {
		fmt.Fprintln(os.Stderr, "a -user and a known -role are required")
		os.Exit(2)
	}

	verifier, err := jwt.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init signer: %v\n", err)
		os.Exit(1)
	}
	token, err := verifier.Issue(identity, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
