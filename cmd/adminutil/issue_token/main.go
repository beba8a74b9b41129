package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/sudo-init-do/gamevault/internal/authz"
	"github.com/sudo-init-do/gamevault/internal/config"
)

func main() {
	userID := flag.String("user", "", "Subject of the token")
	role := flag.String("role", "user", "Role claim: user or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -user ops-1 -role admin")
	}
	if *role != authz.RoleUser && *role != authz.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	token, err := authz.NewTokens(cfg.JWTSecret).Issue(*userID, *role, *ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
