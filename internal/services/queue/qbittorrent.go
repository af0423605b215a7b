// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"

	"github.com/autobrr/fetcharr/internal/domain"
	"github.com/autobrr/fetcharr/internal/models"
)

const grabCategory = "fetcharr"

// QbitDownloader drives one qBittorrent instance. Each grab is tagged with
// a unique marker that doubles as the download ID, so progress lookups and
// removals never need the torrent hash up front.
type QbitDownloader struct {
	client *qbt.Client
}

func NewQbitDownloader(ctx context.Context, dc *models.DownloadClient) (*QbitDownloader, error) {
	client := qbt.NewClient(qbt.Config{
		Host:     dc.Host,
		Username: dc.Username,
		Password: dc.Password,
		Timeout:  60,
	})
	if err := client.LoginCtx(ctx); err != nil {
		return nil, errors.Wrapf(err, "connect to %q", dc.Name)
	}
	return &QbitDownloader{client: client}, nil
}

func (d *QbitDownloader) Grab(ctx context.Context, c *domain.Candidate) (string, error) {
	h := fnv.New64a()
	h.Write([]byte(c.Fingerprint()))
	tag := fmt.Sprintf("%s-%x-%d", grabCategory, h.Sum64(), time.Now().UnixNano())

	opts := map[string]string{
		"category": grabCategory,
		"tags":     tag,
	}
	if err := d.client.AddTorrentFromUrlCtx(ctx, c.DownloadURL, opts); err != nil {
		return "", errors.Wrap(err, "add torrent")
	}
	return tag, nil
}

func (d *QbitDownloader) Transfer(ctx context.Context, downloadID string) (*Transfer, error) {
	torrents, err := d.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Tag: downloadID})
	if err != nil {
		return nil, errors.Wrap(err, "get torrents")
	}
	if len(torrents) == 0 {
		return &Transfer{State: TransferFailed, Message: "torrent disappeared from client"}, nil
	}

	t := torrents[0]
	return &Transfer{
		State:         mapTorrentState(t.State),
		Progress:      t.Progress,
		SizeRemaining: t.AmountLeft,
	}, nil
}

func (d *QbitDownloader) Remove(ctx context.Context, downloadID string, deleteFiles bool) error {
	torrents, err := d.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Tag: downloadID})
	if err != nil {
		return errors.Wrap(err, "get torrents")
	}
	if len(torrents) == 0 {
		return nil
	}

	hashes := make([]string, 0, len(torrents))
	for _, t := range torrents {
		hashes = append(hashes, t.Hash)
	}
	return d.client.DeleteTorrentsCtx(ctx, hashes, deleteFiles)
}

func mapTorrentState(state qbt.TorrentState) TransferState {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return TransferFailed
	case qbt.TorrentStatePausedDl, qbt.TorrentStateStoppedDl:
		return TransferPaused
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStatePausedUp,
		qbt.TorrentStateStoppedUp, qbt.TorrentStateQueuedUp, qbt.TorrentStateCheckingUp,
		qbt.TorrentStateForcedUp:
		return TransferCompleted
	default:
		return TransferDownloading
	}
}

// ClientRegistry hands out cached downloader adapters per configured
// client row. Connections are built lazily and rebuilt after Invalidate.
type ClientRegistry struct {
	clients *models.DownloadClientStore

	mu    sync.Mutex
	cache map[int]Downloader
}

func NewClientRegistry(clients *models.DownloadClientStore) *ClientRegistry {
	return &ClientRegistry{clients: clients, cache: make(map[int]Downloader)}
}

// Resolve satisfies DownloaderFactory.
func (r *ClientRegistry) Resolve(ctx context.Context, clientID int) (Downloader, error) {
	r.mu.Lock()
	if d, ok := r.cache[clientID]; ok {
		r.mu.Unlock()
		return d, nil
	}
	r.mu.Unlock()

	dc, err := r.clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !dc.Enabled {
		return nil, fmt.Errorf("download client %q is disabled", dc.Name)
	}

	d, err := NewQbitDownloader(ctx, dc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[clientID] = d
	r.mu.Unlock()
	return d, nil
}

// Invalidate drops the cached adapter after a client row changes.
func (r *ClientRegistry) Invalidate(clientID int) {
	r.mu.Lock()
	delete(r.cache, clientID)
	r.mu.Unlock()
}
