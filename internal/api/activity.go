package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Trove/internal/api/downloads"
	"github.com/hbomb79/Trove/internal/event"
	"github.com/hbomb79/Trove/internal/http/websocket"
)

const (
	TITLE_TRANSFER_UPDATE     = "TRANSFER_UPDATE"
	TITLE_TRANSFER_PROGRESS   = "TRANSFER_PROGRESS"
	TITLE_SCAN_PROGRESS       = "SCAN_PROGRESS"
	TITLE_PROCESSING_PROGRESS = "PROCESSING_PROGRESS"
	TITLE_SESSION_CANCELLED   = "SESSION_CANCELLED"

	lookupTimeout = 5 * time.Second
)

type (
	TransferUpdate struct {
		TransferID uuid.UUID      `json:"transfer_id"`
		Transfer   *downloads.Dto `json:"transfer"`
	}

	TransferProgressUpdate struct {
		TransferID      uuid.UUID `json:"transfer_id"`
		BytesDownloaded int64     `json:"bytes_downloaded"`
		TotalBytes      *int64    `json:"total_bytes,omitempty"`
		Percent         int       `json:"percent"`
	}

	socketSender interface {
		Send(*websocket.SocketMessage)
	}

	// broadcaster implements the activity service's Broadcaster by
	// sending update messages to every connected socket client.
	broadcaster struct {
		socketHub     socketSender
		transferStore downloads.Service
	}
)

func newBroadcaster(socketHub socketSender, transferStore downloads.Service) *broadcaster {
	return &broadcaster{socketHub, transferStore}
}

// BroadcastTransferUpdate sends the full transfer, including its chunks. A
// transfer which no longer exists is sent with a nil body so that
// clients can drop it.
func (hub *broadcaster) BroadcastTransferUpdate(id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	update := TransferUpdate{TransferID: id}
	if transfer, err := hub.transferStore.Transfer(ctx, id); err == nil {
		dto := downloads.NewDto(transfer)
		if chunks, err := hub.transferStore.Chunks(ctx, id); err == nil {
			dto.Chunks = chunks
		}
		update.Transfer = &dto
	}

	hub.broadcast(TITLE_TRANSFER_UPDATE, update)
	return nil
}

func (hub *broadcaster) BroadcastTransferProgress(id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	transfer, err := hub.transferStore.Transfer(ctx, id)
	if err != nil {
		return err
	}

	hub.broadcast(TITLE_TRANSFER_PROGRESS, TransferProgressUpdate{
		TransferID:      id,
		BytesDownloaded: transfer.BytesDownloaded,
		TotalBytes:      transfer.TotalBytes,
		Percent:         transfer.Percent(),
	})
	return nil
}

func (hub *broadcaster) BroadcastScanProgress(progress event.ScanProgress) error {
	hub.broadcast(TITLE_SCAN_PROGRESS, progress)
	return nil
}

func (hub *broadcaster) BroadcastProcessingProgress(progress event.ProcessingProgress) error {
	hub.broadcast(TITLE_PROCESSING_PROGRESS, progress)
	return nil
}

func (hub *broadcaster) BroadcastSessionCancelled(sessionID string) error {
	hub.broadcast(TITLE_SESSION_CANCELLED, map[string]string{"session_id": sessionID})
	return nil
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}
