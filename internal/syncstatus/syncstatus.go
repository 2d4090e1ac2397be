// Copyright 2015 The go-ethereum Authors
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

// Package syncstatus exposes a tiny debug HTTP surface an operator can poll
// to see each download track's current state, without reaching for metrics
// scraping infrastructure.
package syncstatus

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/emberchain/go-ember/ember/blocksync"
)

// Track reports the subset of a blocksync.Downloader's state an operator
// cares about at a glance.
type Track struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	LastImportedBlock uint64 `json:"lastImportedBlock"`
	LastImportedHash string `json:"lastImportedHash"`
	HeapSize         uint64 `json:"heapSize"`
}

// Source supplies the live downloaders this package reports on.
type Source interface {
	NewBlocksDownloader() *blocksync.Downloader
	OldBlocksDownloader() *blocksync.Downloader
}

// Server serves /debug/sync and /debug/sync/:track over plain HTTP.
type Server struct {
	source Source
	router *httprouter.Router
	ln     net.Listener
}

// NewServer builds a Server; call ListenAndServe to start it.
func NewServer(source Source) *Server {
	s := &Server{source: source, router: httprouter.New()}
	s.router.GET("/debug/sync", s.handleAll)
	s.router.GET("/debug/sync/:track", s.handleOne)
	return s
}

// ListenAndServe binds addr and serves until the listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return http.Serve(ln, s.router)
}

// Close tears down the listener.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tracks := []Track{
		describe("new_blocks", s.source.NewBlocksDownloader()),
		describe("old_blocks", s.source.OldBlocksDownloader()),
	}
	writeJSON(w, tracks)
}

func (s *Server) handleOne(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var d *blocksync.Downloader
	name := ps.ByName("track")
	switch name {
	case "new_blocks":
		d = s.source.NewBlocksDownloader()
	case "old_blocks":
		d = s.source.OldBlocksDownloader()
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, describe(name, d))
}

func describe(name string, d *blocksync.Downloader) Track {
	return Track{
		Name:             name,
		State:            d.State().String(),
		LastImportedBlock: d.LastImportedBlock(),
		LastImportedHash: d.LastImportedHash().Hex(),
		HeapSize:         d.HeapSize(),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
