// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// goember is a minimal standalone entrypoint that stands up the ember block
// download engine against a single listening p2p port. It does not assemble
// a full node: accounts, RPC, and persistent chain storage are out of scope
// (see SPEC_FULL.md's Non-goals) - this binary exists to exercise the engine
// end to end, not to run a production network participant.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p"

	"gopkg.in/urfave/cli.v1"

	"github.com/emberchain/go-ember/ember"
	"github.com/emberchain/go-ember/internal/syncstatus"
)

var (
	networkIDFlag = cli.Uint64Flag{
		Name:  "networkid",
		Usage: "Network identifier (must be non-zero; not checked against peers)",
		Value: ember.DefaultConfig.NetworkId,
	}
	listenAddrFlag = cli.StringFlag{
		Name:  "addr",
		Usage: "p2p listening address",
		Value: ":30311",
	}
	debugAddrFlag = cli.StringFlag{
		Name:  "debugaddr",
		Usage: "HTTP address serving /debug/sync status, empty to disable",
		Value: "127.0.0.1:6161",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "goember"
	app.Usage = "standalone ember block-download engine"
	app.Flags = []cli.Flag{networkIDFlag, listenAddrFlag, debugAddrFlag}
	app.Action = run
	sort.Sort(cli.FlagsByName(app.Flags))

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := ember.DefaultConfig
	cfg.NetworkId = ctx.Uint64(networkIDFlag.Name)

	chain := newGenesisChain(cfg.Genesis)

	backend, err := ember.New(&cfg, chain, chain, new(event.TypeMux))
	if err != nil {
		return err
	}

	nodeKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	srvr := &p2p.Server{
		Config: p2p.Config{
			PrivateKey: nodeKey,
			ListenAddr: ctx.String(listenAddrFlag.Name),
			MaxPeers:   50,
			Protocols:  backend.Protocols(),
		},
	}
	if err := srvr.Start(); err != nil {
		return err
	}
	defer srvr.Stop()

	if err := backend.Start(srvr); err != nil {
		return err
	}
	defer backend.Stop()

	if addr := ctx.String(debugAddrFlag.Name); addr != "" {
		status := syncstatus.NewServer(backend)
		go func() {
			if err := status.ListenAndServe(addr); err != nil {
				log.Error("sync status server exited", "err", err)
			}
		}()
		defer status.Close()
	}

	log.Info("goember running", "enode", srvr.NodeInfo().Enode)
	select {}
}
