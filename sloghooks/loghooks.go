// Package sloghooks reports cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	mongocache "github.com/drgatoxd/mongo-cache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitMissEvery uint64
	// Optional id redactor. Defaults to a SHA-256 prefix; identity when
	// RawIDs is set.
	Redact func(string) string
	RawIDs bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitMissCtr atomic.Uint64
}

var _ mongocache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(id string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(id)
	}
	if h.opts.RawIDs {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) MirrorHit(ns, id string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("mongocache.mirror_hit", "ns", ns, "id", h.redact(id))
}

func (h *Hooks) MirrorMiss(ns, id string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("mongocache.mirror_miss", "ns", ns, "id", h.redact(id))
}

func (h *Hooks) Created(ns, id string) {
	if h.l == nil {
		return
	}
	h.l.Info("mongocache.created", "ns", ns, "id", h.redact(id))
}

func (h *Hooks) Resynced(ns string, before, after int) {
	if h.l == nil {
		return
	}
	h.l.Info("mongocache.resynced",
		"ns", ns,
		"before", before,
		"after", after)
}

func (h *Hooks) Evicted(ns string, n int) {
	if h.l == nil {
		return
	}
	h.l.Debug("mongocache.evicted", "ns", ns, "count", n)
}

func (h *Hooks) MirrorError(ns string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("mongocache.mirror_error", "ns", ns, "err", err)
}
