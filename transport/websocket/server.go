package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/tictactoe"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
)

const (
	sessionCookieName = "user_session"
	sessionCookieTTL  = 24 * time.Hour
	shutdownTimeout   = 5 * time.Second
)

type matchUseCase interface {
	GetOrCreateSession(ctx context.Context, id string) (view.State, error)
	Subscribe(ctx context.Context, id string, listener tictactoe.Listener) (func(), error)
	State(ctx context.Context, id string) (view.State, error)

	StartMatch(ctx context.Context, id, name1, name2 string) (view.State, error)
	ApplyMove(ctx context.Context, id string, cell int) (view.State, error)
	JumpTo(ctx context.Context, id string, index int) (view.State, error)
	RestartRound(ctx context.Context, id string) (view.State, error)
	QuitMatch(ctx context.Context, id string) (view.State, error)
	ToggleHistoryOrder(ctx context.Context, id string) (view.State, error)
}

type handler func(ctx context.Context, client *client, message *Message) error

type Server struct {
	logger   *slog.Logger
	matches  matchUseCase
	upgrader websocket.Upgrader

	handlers map[string]handler

	connsMutex sync.Mutex
	conns      map[*client]struct{}
	connsWG    sync.WaitGroup
}

func New(logger *slog.Logger, matches matchUseCase) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		matches: matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the hot-seat screen is served from any origin
			CheckOrigin: func(*http.Request) bool { return true },
		},

		handlers: make(map[string]handler),
		conns:    make(map[*client]struct{}),
	}

	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionMatchStart] = server.handleMatchStart
	server.handlers[actionMatchMove] = server.handleMatchMove
	server.handlers[actionMatchJump] = server.handleMatchJump
	server.handlers[actionMatchRestart] = server.handleMatchRestart
	server.handlers[actionMatchQuit] = server.handleMatchQuit
	server.handlers[actionHistoryToggle] = server.handleHistoryToggle

	return server
}

// Handler - routes of the WebSocket endpoint.
func (that *Server) Handler() http.Handler {
	mux := httprouter.New()
	mux.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		that.upgradeToWebSocket(w, r)
	})

	return mux
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	// Shutdown does not wait for hijacked connections.
	if err := that.closeConnections(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close connections: %w", err)
	}

	return nil
}

// closeConnections - closes every open connection and waits until their handlers returned.
func (that *Server) closeConnections(ctx context.Context) error {
	that.connsMutex.Lock()
	for client := range that.conns {
		_ = client.conn.Close()
	}
	that.connsMutex.Unlock()

	done := make(chan struct{})
	go func() {
		that.connsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (that *Server) track(client *client) func() {
	that.connsWG.Add(1)

	that.connsMutex.Lock()
	that.conns[client] = struct{}{}
	that.connsMutex.Unlock()

	return func() {
		that.connsMutex.Lock()
		delete(that.conns, client)
		that.connsMutex.Unlock()

		that.connsWG.Done()
	}
}

// upgradeToWebSocket - resolves the session of the browser and upgrades the connection.
func (that *Server) upgradeToWebSocket(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")
	ctx := r.Context()

	var cookieValue string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		cookieValue = cookie.Value
	}

	state, err := that.matches.GetOrCreateSession(ctx, cookieValue)
	if err != nil {
		log.Error("failed to get or create session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	responseHeader := http.Header{}
	if state.SessionID != cookieValue {
		cookie := &http.Cookie{
			Name:     sessionCookieName,
			Value:    state.SessionID,
			Expires:  time.Now().Add(sessionCookieTTL),
			Path:     "/ws",
			HttpOnly: true,
		}
		responseHeader.Add("Set-Cookie", cookie.String())
		log.Info("session cookie not found, new one created", "cookie", state.SessionID)
	}

	conn, err := that.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(that.logger, conn, state.SessionID)
	untrack := that.track(client)
	defer untrack()

	unsubscribe, err := that.matches.Subscribe(ctx, state.SessionID, client.pushState)
	if err != nil {
		log.Error("failed to subscribe to session", "error", err)
		_ = conn.Close()
		return
	}

	log.Info("WebSocket connection established", "sessionID", state.SessionID)

	go client.writePump()

	client.readPump(func(message *Message) {
		that.handleMessage(ctx, client, message)
	})

	unsubscribe()
	client.close()

	log.Info("WebSocket connection closed", "sessionID", state.SessionID)
}

// handleMessage - dispatches a message to its handler and reports failures to the client.
func (that *Server) handleMessage(ctx context.Context, client *client, message *Message) {
	log := that.logger.With("method", "handleMessage", "action", message.Action)

	handle, ok := that.handlers[message.Action]
	if !ok {
		log.Warn("unknown action")
		client.sendError(message.Action, fmt.Errorf("%w: %q", apperror.ErrUnknownAction, message.Action))
		return
	}

	if err := handle(ctx, client, message); err != nil {
		log.Error("error processing message", "error", err)
		client.sendError(message.Action, clientError(err))
	}
}
