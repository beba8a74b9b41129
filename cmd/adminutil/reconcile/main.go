package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/sudo-init-do/gamevault/internal/config"
	"github.com/sudo-init-do/gamevault/internal/ledger"
	"github.com/sudo-init-do/gamevault/internal/models"
	"github.com/sudo-init-do/gamevault/internal/store/pgstore"
)

func main() {
	user := flag.String("user", "", "Only check this user's wallets")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	st, err := pgstore.Open(ctx, cfg.DSN(), cfg.DBMaxConns, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	engine := ledger.New(st, zap.NewNop())
	wallets, err := st.ListWallets(ctx)
	if err != nil {
		log.Fatalf("failed to list wallets: %v", err)
	}

	drifted := 0
	for _, w := range wallets {
		if *user != "" && w.UserID != *user {
			continue
		}
		d, err := engine.Reconcile(ctx, models.WalletKey{UserID: w.UserID, Currency: w.Currency})
		if err != nil {
			log.Fatalf("reconcile %s/%s: %v", w.UserID, w.Currency, err)
		}
		if d.InSync() {
			continue
		}
		drifted++
		fmt.Printf("%s/%s: stored available=%s escrow=%s, ledger says available=%s escrow=%s\n",
			w.UserID, w.Currency, d.Wallet.Available, d.Wallet.Escrow, d.ExpectedAvailable, d.ExpectedEscrow)
	}

	if drifted > 0 {
		fmt.Printf("%d wallet(s) drifted from their ledger.\n", drifted)
		os.Exit(1)
	}
	fmt.Println("All wallets match their ledger.")
}
