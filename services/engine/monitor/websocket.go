// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package monitor

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianSwarm/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func sendJSON(ws *websocket.Conn, logger *slog.Logger, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		logger.Warn("failed to write websocket JSON", slog.String("error", err.Error()))
	}
	return err
}

// handleEvents handles GET /v1/engine/ws.
//
// The client receives one "subscribed" frame, then every bus event
// whose topic matches the optional "topic" prefix query parameter. The
// stream is one-way; anything the client sends is ignored, but a read
// failure is how the server notices the client is gone.
func (s *Server) handleEvents(c *gin.Context) {
	prefix := c.Query("topic")
	if err := validation.ValidateTopicPrefix(prefix); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_TOPIC",
		})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	logger := s.logger.With(
		slog.String("remote", c.Request.RemoteAddr),
		slog.String("topic_prefix", prefix),
	)
	logger.Info("websocket client connected")

	sub := s.bus.Subscribe(prefix)
	defer s.bus.Unsubscribe(sub)

	if err := sendJSON(ws, logger, gin.H{
		"action":       "subscribed",
		"topic_prefix": prefix,
		"run_id":       s.engine.RunID(),
	}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			if err := sendJSON(ws, logger, ev); err != nil {
				return
			}
		case <-closed:
			logger.Info("websocket client disconnected",
				slog.Uint64("dropped_events", sub.Dropped()))
			return
		}
	}
}
