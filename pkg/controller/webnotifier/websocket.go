/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package webnotifier

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/internal/cmdutil"
	"github.com/learningeconomy/vcapi-exchange-go/pkg/controller/rest"
)

// WSNotifier pushes topic messages to connected websocket clients.
type WSNotifier struct {
	conns     map[*websocket.Conn]struct{}
	connsLock sync.RWMutex
	handlers  []rest.Handler
}

// NewWSNotifier returns a websocket notifier accepting clients on path.
func NewWSNotifier(path string) *WSNotifier {
	n := &WSNotifier{conns: make(map[*websocket.Conn]struct{})}

	n.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(path, http.MethodGet, n.handleWS),
	}

	return n
}

// Notify writes the enveloped message to every connected client.
// The first error encountered is returned.
func (n *WSNotifier) Notify(topic string, message []byte) error {
	if topic == "" {
		return fmt.Errorf(emptyTopicErrMsg)
	}

	if len(message) == 0 {
		return fmt.Errorf(emptyMessageErrMsg)
	}

	conns := n.connections()
	if len(conns) == 0 {
		return nil
	}

	topicMsg, err := PrepareTopicMessage(topic, message)
	if err != nil {
		return fmt.Errorf(failedToCreateErrMsg, err)
	}

	var allErrs error

	for _, conn := range conns {
		allErrs = appendError(allErrs, write(conn, topicMsg))
	}

	return allErrs
}

// Clients returns the number of connected clients.
func (n *WSNotifier) Clients() int {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()

	return len(n.conns)
}

func (n *WSNotifier) connections() []*websocket.Conn {
	n.connsLock.RLock()
	defer n.connsLock.RUnlock()

	conns := make([]*websocket.Conn, 0, len(n.conns))
	for c := range n.conns {
		conns = append(conns, c)
	}

	return conns
}

func write(conn *websocket.Conn, message []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), notificationSendTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, message)
}

func (n *WSNotifier) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Infof("failed to upgrade websocket notification connection: %s", err)

		return
	}

	n.connsLock.Lock()
	n.conns[conn] = struct{}{}
	n.connsLock.Unlock()

	logger.Debugf("websocket notification client connected")

	n.monitor(r.Context(), conn)
}

// monitor blocks until the client closes the connection or sends a message.
// Clients only listen, so any inbound frame closes the connection.
func (n *WSNotifier) monitor(ctx context.Context, conn *websocket.Conn) {
	_, _, err := conn.Reader(ctx)

	n.removeConn(conn)

	if err != nil {
		if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Infof("reading from websocket notification client failed: %s", err)
		}

		return
	}

	if err = conn.Close(websocket.StatusPolicyViolation, "unexpected message"); err != nil {
		logger.Infof("closing websocket notification client failed: %s", err)
	}
}

func (n *WSNotifier) removeConn(conn *websocket.Conn) {
	n.connsLock.Lock()
	delete(n.conns, conn)
	n.connsLock.Unlock()

	logger.Debugf("websocket notification client dropped")
}

// GetRESTHandlers returns the websocket upgrade endpoint.
func (n *WSNotifier) GetRESTHandlers() []rest.Handler {
	return n.handlers
}
