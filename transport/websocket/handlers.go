package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
)

var (
	errFieldMissing = errors.New("field is required")
	errInternal     = errors.New("internal error")
)

// Commands do not answer directly: every change reaches all connections of the session
// through their pushState listener.

func (that *Server) handleConnect(ctx context.Context, client *client, _ *Message) error {
	state, err := that.matches.State(ctx, client.sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session state: %w", err)
	}

	return client.sendMessage(actionMatchState, state)
}

func (that *Server) handleMatchStart(ctx context.Context, client *client, msg *Message) error {
	var payload StartPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	if _, err := that.matches.StartMatch(ctx, client.sessionID, payload.Player1, payload.Player2); err != nil {
		return fmt.Errorf("failed to start match: %w", err)
	}

	return nil
}

func (that *Server) handleMatchMove(ctx context.Context, client *client, msg *Message) error {
	var payload MovePayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	if payload.Cell == nil {
		return fmt.Errorf("%w: cell %w", apperror.ErrPayloadMalformed, errFieldMissing)
	}

	if _, err := that.matches.ApplyMove(ctx, client.sessionID, *payload.Cell); err != nil {
		return fmt.Errorf("failed to apply move: %w", err)
	}

	return nil
}

func (that *Server) handleMatchJump(ctx context.Context, client *client, msg *Message) error {
	var payload JumpPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	if payload.Move == nil {
		return fmt.Errorf("%w: move %w", apperror.ErrPayloadMalformed, errFieldMissing)
	}

	if _, err := that.matches.JumpTo(ctx, client.sessionID, *payload.Move); err != nil {
		return fmt.Errorf("failed to jump to move: %w", err)
	}

	return nil
}

func (that *Server) handleMatchRestart(ctx context.Context, client *client, _ *Message) error {
	if _, err := that.matches.RestartRound(ctx, client.sessionID); err != nil {
		return fmt.Errorf("failed to restart round: %w", err)
	}

	return nil
}

func (that *Server) handleMatchQuit(ctx context.Context, client *client, _ *Message) error {
	if _, err := that.matches.QuitMatch(ctx, client.sessionID); err != nil {
		return fmt.Errorf("failed to quit match: %w", err)
	}

	return nil
}

func (that *Server) handleHistoryToggle(ctx context.Context, client *client, _ *Message) error {
	if _, err := that.matches.ToggleHistoryOrder(ctx, client.sessionID); err != nil {
		return fmt.Errorf("failed to toggle history order: %w", err)
	}

	return nil
}

func decodePayload(msg *Message, payload any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: payload is empty", apperror.ErrPayloadMalformed)
	}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrPayloadMalformed, err)
	}

	return nil
}

// clientError hides internal failures from the browser.
func clientError(err error) error {
	for _, known := range []error{
		apperror.ErrSessionNotFound,
		apperror.ErrUnknownAction,
		apperror.ErrPayloadMalformed,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	return errInternal
}
