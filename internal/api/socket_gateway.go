package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hbomb79/Trove/internal/api/sessions"
	"github.com/hbomb79/Trove/internal/http/websocket"
)

const socketCommandTimeout = 10 * time.Second

type (
	cancelSessionArguments struct {
		SessionID string `mapstructure:"sessionId"`
	}

	socketGateway struct {
		sessions sessions.Service
	}
)

func (gateway *socketGateway) bindCommands(hub *websocket.SocketHub) {
	hub.BindCommand("CANCEL_SESSION", gateway.cancelSession)
}

func (gateway *socketGateway) cancelSession(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	var args cancelSessionArguments
	if err := message.DecodeArguments(&args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if args.SessionID == "" {
		return errors.New("invalid arguments: 'sessionId' is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), socketCommandTimeout)
	defer cancel()
	if err := gateway.sessions.CancelSession(ctx, args.SessionID); err != nil {
		return err
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"sessionId": args.SessionID}, websocket.Response))
	return nil
}
