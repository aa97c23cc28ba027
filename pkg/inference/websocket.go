package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// wsModel talks to a model server over one long lived websocket. A request
// is a binary frame with the image bytes; the reply is a JSON text frame.
// Exchanges are serialised because replies carry no correlation id.
type wsModel struct {
	url          string
	conn         *websocket.Conn
	connected    atomic.Bool
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
	log          *logrus.Logger
}

func newWSModel(log *logrus.Logger, url string, readTimeout, pingInterval time.Duration) *wsModel {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	m := &wsModel{
		url:          url,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
		log:          log,
	}

	m.mu.Lock()
	err := m.connectLocked()
	m.mu.Unlock()
	if err != nil {
		log.WithFields(logrus.Fields{
			"url":   url,
			"error": err.Error(),
		}).Error("Initial connection to inference websocket failed")
	} else {
		log.WithField("url", url).Info("Connected to inference websocket")
	}

	go m.keepAlive()
	return m
}

// Ready does not take mu, so it never waits behind an in-flight exchange.
func (m *wsModel) Ready() bool {
	return m.connected.Load()
}

// setConnLocked replaces the connection; callers hold mu.
func (m *wsModel) setConnLocked(conn *websocket.Conn) {
	m.conn = conn
	m.connected.Store(conn != nil)
}

func (m *wsModel) Close() error {
	m.closeOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.setConnLocked(nil)
	return err
}

func (m *wsModel) connectLocked() error {
	if m.conn != nil {
		m.conn.Close()
		m.setConnLocked(nil)
	}
	if m.url == "" {
		return fmt.Errorf("websocket URL not configured")
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(m.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", m.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(m.writeTimeout)); err != nil {
			m.log.Debugf("Error sending pong: %v", err)
		}
		return nil
	})

	m.setConnLocked(conn)
	return nil
}

// keepAlive pings a live connection and redials a dead one, so readiness
// comes back once the server does.
func (m *wsModel) keepAlive() {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.conn == nil {
			if err := m.connectLocked(); err != nil {
				m.log.WithFields(logrus.Fields{
					"url":   m.url,
					"error": err.Error(),
				}).Debug("Reconnect to inference websocket failed")
			} else {
				m.log.WithField("url", m.url).Info("Reconnected to inference websocket")
			}
			m.mu.Unlock()
			continue
		}

		err := m.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(m.writeTimeout))
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"url":   m.url,
				"error": err.Error(),
			}).Warn("Ping failed, marking inference connection as dead")
			m.conn.Close()
			m.setConnLocked(nil)
		}
		m.mu.Unlock()
	}
}

func (m *wsModel) exchange(ctx context.Context, imagePath string, out any) error {
	frame, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		if err := m.connectLocked(); err != nil {
			return fmt.Errorf("cannot connect to inference service: %w", err)
		}
	}
	conn := m.conn

	writeDeadline := time.Now().Add(m.writeTimeout)
	readDeadline := time.Now().Add(m.readTimeout)
	if dl, ok := ctx.Deadline(); ok {
		if dl.Before(writeDeadline) {
			writeDeadline = dl
		}
		if dl.Before(readDeadline) {
			readDeadline = dl
		}
	}

	conn.SetWriteDeadline(writeDeadline)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		conn.Close()
		m.setConnLocked(nil)
		return fmt.Errorf("error sending frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		m.setConnLocked(nil)
		return fmt.Errorf("error reading reply: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	if err := json.Unmarshal(message, out); err != nil {
		return fmt.Errorf("error unmarshaling reply: %w", err)
	}
	return nil
}

type WSDetector struct {
	*wsModel
}

func NewWSDetector(log *logrus.Logger, url string, timeout, pingInterval time.Duration) *WSDetector {
	return &WSDetector{wsModel: newWSModel(log, url, timeout, pingInterval)}
}

func (d *WSDetector) Detect(ctx context.Context, imagePath string) (*DetectionOutput, error) {
	var out DetectionOutput
	if err := d.exchange(ctx, imagePath, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type WSClassifier struct {
	*wsModel
}

func NewWSClassifier(log *logrus.Logger, url string, timeout, pingInterval time.Duration) *WSClassifier {
	return &WSClassifier{wsModel: newWSModel(log, url, timeout, pingInterval)}
}

func (c *WSClassifier) Classify(ctx context.Context, imagePath string) (*ClassificationOutput, error) {
	var out ClassificationOutput
	if err := c.exchange(ctx, imagePath, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
