package simulator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// contentPrefix tags simulator messages so receivers can measure delivery.
const contentPrefix = "sim"

func messageContent(sentAt time.Time, from string) string {
	return fmt.Sprintf("%s %d %s", contentPrefix, sentAt.UnixNano(), from)
}

// sentAtFromContent recovers the send time stamped by messageContent.
func sentAtFromContent(content string) (time.Time, bool) {
	fields := strings.Fields(content)
	if len(fields) < 2 || fields[0] != contentPrefix {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Code    string `json:"code"`
	Err     string `json:"err"`
}

func (s *Simulator) wsURL() string {
	url := s.config.EngineURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/chat"
}

// connect opens the user's websocket session and starts its reader.
func (s *Simulator) connect(ctx context.Context, user *SimulatedUser) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+user.Token)

	conn, _, err := s.dialer.DialContext(ctx, s.wsURL(), header)
	if err != nil {
		return err
	}

	user.mu.Lock()
	user.conn = conn
	user.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(user, conn)
	return nil
}

func (s *Simulator) disconnect(user *SimulatedUser) {
	user.mu.Lock()
	conn := user.conn
	user.conn = nil
	user.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (s *Simulator) disconnectAll() {
	for _, user := range s.users {
		s.disconnect(user)
	}
	s.wg.Wait()
}

func (s *Simulator) readLoop(user *SimulatedUser, conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// A session closed by the server shows up as offline
			user.mu.Lock()
			if user.conn == conn {
				user.conn = nil
			}
			user.mu.Unlock()
			return
		}

		s.stats.mu.Lock()
		switch frame.Type {
		case "direct", "group":
			s.stats.Received++
			if sentAt, ok := sentAtFromContent(frame.Content); ok {
				s.stats.deliveries++
				total := s.stats.AverageDelivery * time.Duration(s.stats.deliveries-1)
				s.stats.AverageDelivery = (total + time.Since(sentAt)) / time.Duration(s.stats.deliveries)
			}
		case "error":
			s.stats.ErrorFrames++
			s.logger.Debug("error frame", "user", user.Username, "code", frame.Code, "err", frame.Err)
		}
		s.stats.mu.Unlock()
	}
}

// send writes one frame on the user's session. Writes hold the user lock so
// each connection has a single writer.
func (s *Simulator) send(user *SimulatedUser, frame interface{}) error {
	user.mu.Lock()
	defer user.mu.Unlock()
	if user.conn == nil {
		return fmt.Errorf("%s is offline", user.Username)
	}
	user.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return user.conn.WriteJSON(frame)
}

func (s *Simulator) simulateMessaging(ctx context.Context) {
	s.logger.Info("starting messaging simulation")
	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	// Per-tick probability that a connected user sends something
	p := s.config.MessageFrequency / 60.0 * s.config.Tick.Seconds()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if !user.connected() || !s.chance(p) {
					continue
				}
				if len(user.Groups) > 0 && s.chance(s.config.GroupMessageShare) {
					s.sendGroupMessage(user)
				} else {
					s.sendDirectMessage(user)
				}
			}
		}
	}
}

func (s *Simulator) sendDirectMessage(user *SimulatedUser) {
	if len(user.Friends) == 0 {
		return
	}
	friend := user.Friends[s.intn(len(user.Friends))]
	chatID, ok := user.Chats[friend]
	if !ok || chatID == uuid.Nil {
		return
	}

	err := s.send(user, map[string]string{
		"type":    "direct",
		"chat_id": chatID.String(),
		"to_id":   friend.String(),
		"content": messageContent(time.Now(), user.Username),
	})
	if err != nil {
		s.logger.Debug("direct send failed", "user", user.Username, "error", err)
		return
	}
	s.stats.mu.Lock()
	s.stats.DirectSent++
	s.stats.mu.Unlock()
}

func (s *Simulator) sendGroupMessage(user *SimulatedUser) {
	groupID := user.Groups[s.intn(len(user.Groups))]
	err := s.send(user, map[string]string{
		"type":     "group",
		"group_id": groupID.String(),
		"content":  messageContent(time.Now(), user.Username),
	})
	if err != nil {
		s.logger.Debug("group send failed", "user", user.Username, "error", err)
		return
	}
	s.stats.mu.Lock()
	s.stats.GroupSent++
	s.stats.mu.Unlock()
}

// simulateConnectivity drops and restores sessions at the configured rates.
func (s *Simulator) simulateConnectivity(ctx context.Context) {
	s.logger.Info("starting connectivity simulation")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, user := range s.users {
				if user.connected() {
					if s.chance(s.config.DisconnectRate) {
						s.disconnect(user)
					}
					continue
				}
				if !s.chance(s.config.ReconnectRate) {
					continue
				}
				if err := s.connect(ctx, user); err != nil {
					s.logger.Debug("reconnect failed", "user", user.Username, "error", err)
					continue
				}
				s.stats.mu.Lock()
				s.stats.Reconnects++
				s.stats.mu.Unlock()
			}
		}
	}
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.stats.mu.RLock()
			successRate := 0.0
			if s.stats.TotalRequests > 0 {
				successRate = float64(s.stats.SuccessRequests) / float64(s.stats.TotalRequests) * 100
			}
			s.stats.mu.RUnlock()
			s.logger.Info("simulation metrics",
				"elapsed", time.Since(s.stats.StartTime).Round(time.Second),
				"request_rate", fmt.Sprintf("%.2f/s", m.RequestsPerSecond),
				"success_rate", fmt.Sprintf("%.1f%%", successRate),
				"avg_latency", m.AverageLatency,
				"active_users", fmt.Sprintf("%d/%d", m.ActiveUsers, m.TotalUsers),
				"direct_sent", m.DirectSent,
				"group_sent", m.GroupSent,
				"received", m.Received,
				"avg_delivery", m.AverageDelivery,
				"error_frames", m.ErrorFrames,
				"failed_requests", m.ErrorCount)
		}
	}
}
