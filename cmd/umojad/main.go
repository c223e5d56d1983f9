// Command umojad runs the ledger daemon: a sqlite-backed store behind
// the HTTP API.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/server"
	"github.com/umoja-network/umoja/store/sqlitestore"
	"github.com/umoja-network/umoja/x/cash"
	"github.com/umoja-network/umoja/x/pool"
	"github.com/umoja-network/umoja/x/remit"
	"github.com/umoja-network/umoja/x/tokenreg"
)

type config struct {
	ListenAddr    string `env:"UMOJA_LISTEN" envDefault:":8545"`
	DBPath        string `env:"UMOJA_DB" envDefault:"umoja.db"`
	JWTSecret     string `env:"UMOJA_JWT_SECRET,required"`
	RegistryAdmin string `env:"UMOJA_REGISTRY_ADMIN,required"`

	// Genesis is an optional comma separated list of
	// address:amount:ticker issuances applied once on a fresh
	// database, e.g. "C0FFEE..11:100000:USDC".
	Genesis string `env:"UMOJA_GENESIS"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "umojad: %+v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var conf config
	if err := env.Parse(&conf); err != nil {
		return errors.Wrap(err, "cannot parse configuration")
	}
	admin, err := umoja.ParseAddress(conf.RegistryAdmin)
	if err != nil {
		return errors.Wrap(err, "registry admin")
	}

	db, err := sqlitestore.Open(conf.DBPath)
	if err != nil {
		return errors.Wrap(err, "cannot open database")
	}
	defer db.Close()

	mover := cash.NewController()
	if err := applyGenesis(db, mover, conf.Genesis); err != nil {
		return err
	}

	auth := server.RequestAuth{}
	srv := server.New(db, []byte(conf.JWTSecret),
		pool.NewController(auth, mover),
		remit.NewController(auth, mover),
		tokenreg.NewController(auth, admin),
	)

	log.Printf("listening on %s, database %s", conf.ListenAddr, conf.DBPath)
	return http.ListenAndServe(conf.ListenAddr, srv.Router())
}

var genesisKey = []byte("_genesis:applied")

// applyGenesis issues the configured balances exactly once per
// database.
func applyGenesis(db umoja.CacheableKVStore, mover cash.Controller, genesis string) error {
	if genesis == "" {
		return nil
	}
	switch applied, err := db.Has(genesisKey); {
	case err != nil:
		return err
	case applied:
		return nil
	}

	tx := db.CacheWrap()
	for _, entry := range strings.Split(genesis, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			tx.Discard()
			return errors.Wrapf(errors.ErrInput, "malformed genesis entry %q", entry)
		}
		addr, err := umoja.ParseAddress(parts[0])
		if err != nil {
			tx.Discard()
			return errors.Wrapf(err, "genesis entry %q", entry)
		}
		amount, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			tx.Discard()
			return errors.Wrapf(errors.ErrInput, "genesis amount %q", parts[1])
		}
		if err := mover.IssueCoins(tx, addr, coin.NewCoin(amount, parts[2])); err != nil {
			tx.Discard()
			return errors.Wrapf(err, "genesis entry %q", entry)
		}
		log.Printf("genesis: issued %s %s to %s", parts[1], parts[2], addr)
	}
	if err := tx.Set(genesisKey, []byte{1}); err != nil {
		tx.Discard()
		return err
	}
	return tx.Write()
}
