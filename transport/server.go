// Package transport implements the wire protocol: an HTTP(S) server
// exposing a store's manifests, chunks, sequences and delta payloads, and
// a client consuming them (and implementing syncengine.Fetcher).
package transport

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/delta"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/manifest"
	"github.com/seqdag/seqdag/seqstore"
)

// ContentHashHeader carries the hex-encoded content hash of the object in
// the response body (a manifest's ContentHash, a chunk's hash, a sequence's
// hash or a delta payload's hash), which the client recomputes from the
// decoded body and verifies before trusting it.
const ContentHashHeader = "X-Content-Hash"

// Server exposes a store's read surface over HTTP for sync peers.
type Server struct {
	manifests *manifest.Store
	chunks    *chunk.Store
	sequences *seqstore.Store
	deltas    *delta.Store
}

func NewServer(manifests *manifest.Store, chunks *chunk.Store, sequences *seqstore.Store, deltas *delta.Store) *Server {
	return &Server{manifests: manifests, chunks: chunks, sequences: sequences, deltas: deltas}
}

// Router builds the chi mux for the four read endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/manifest/{id}/{version}", s.handleManifest)
	r.Get("/chunk/{hash}", s.handleChunk)
	r.Get("/sequence/{hash}", s.handleSequence)
	r.Get("/delta/{hash}", s.handleDelta)
	return r
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	version := chi.URLParam(r, "version")
	if version == "head" {
		versions, err := s.manifests.Versions(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(versions) == 0 {
			writeError(w, bioerr.NotFound("transport.handleManifest", id))
			return
		}
		version = versions[len(versions)-1]
	}
	m, err := s.manifests.Get(id, version)
	if err != nil {
		writeError(w, err)
		return
	}
	hash, err := m.ContentHash()
	if err != nil {
		writeError(w, bioerr.StorageError("transport.handleManifest", err))
		return
	}
	writeJSON(w, hash, m)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHash(chi.URLParam(r, "hash"))
	if !ok {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}
	c, err := s.chunks.Get(h)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c.Hash(), c)
}

func (s *Server) handleSequence(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHash(chi.URLParam(r, "hash"))
	if !ok {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}
	raw, err := s.sequences.GetSequence(h)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(ContentHashHeader, h.String())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	h, ok := parseHash(chi.URLParam(r, "hash"))
	if !ok {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}
	ops, err := s.deltas.Get(h)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(ContentHashHeader, h.String())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(delta.EncodeOps(ops))
}

func writeJSON(w http.ResponseWriter, hash hashcodec.Hash, v any) {
	w.Header().Set(ContentHashHeader, hash.String())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var be *bioerr.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case bioerr.KindNotFound, bioerr.KindChunkUnavailable:
			status = http.StatusNotFound
		case bioerr.KindVerification, bioerr.KindSchema:
			status = http.StatusConflict
		}
	}
	http.Error(w, err.Error(), status)
}

func parseHash(s string) (hashcodec.Hash, bool) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return hashcodec.Hash{}, false
	}
	return hashcodec.HashFromBytes(b)
}
