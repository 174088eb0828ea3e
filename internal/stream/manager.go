package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/emotibit-sync/internal/export"
	"github.com/skypro1111/emotibit-sync/internal/metrics"
	"github.com/skypro1111/emotibit-sync/internal/protocol"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

// Session holds the records received from one device.
type Session struct {
	Source       string
	StartTime    time.Time
	LastActivity time.Time

	results      []protocol.Result
	packets      uint64
	errors       uint64
	syncPackets  uint64
	lastSequence uint32
	sequence     sequenceTracker
	closed       bool

	mu sync.RWMutex
}

// Manager manages all active device sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration

	builder  *timesync.Builder
	exporter *export.Exporter // nil disables session export
	metrics  *metrics.Metrics // may be nil

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Timeout  time.Duration
	Builder  *timesync.Builder
	Exporter *export.Exporter
	Metrics  *metrics.Metrics
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	builder := config.Builder
	if builder == nil {
		builder = timesync.NewBuilder(timesync.Options{})
	}

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		timeout:  config.Timeout,
		builder:  builder,
		exporter: config.Exporter,
		metrics:  config.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// Record appends the outcome of decoding one datagram from source, creating
// the session on first contact. The result's line is its position in the
// session.
func (m *Manager) Record(source string, packet protocol.Packet, err error) {
	for {
		if m.getOrCreate(source).add(packet, err) {
			return
		}
		// Finalized between lookup and append; the next lookup starts a new session
	}
}

// add appends one result. It reports false once the session is closed.
func (s *Session) add(packet protocol.Packet, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	line := len(s.results) + 1
	s.LastActivity = time.Now()

	if err != nil {
		s.errors++
		s.results = append(s.results, protocol.Result{
			Line: line,
			Err:  &protocol.DecodeError{Line: line, Err: err},
		})
		return true
	}

	s.packets++
	s.lastSequence = packet.SequenceID
	s.sequence.observe(packet.SequenceID)
	switch packet.TypeTag() {
	case protocol.TagRequestData, protocol.TagTimeLocal, protocol.TagAck:
		s.syncPackets++
	}
	s.results = append(s.results, protocol.Result{Line: line, Packet: packet})
	return true
}

// close stops the session from accepting records. Callers remove it from the
// session map first so a concurrent Record starts a fresh session.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (m *Manager) getOrCreate(source string) *Session {
	m.mu.RLock()
	session, exists := m.sessions[source]
	m.mu.RUnlock()
	if exists {
		return session
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[source]; exists {
		return session
	}

	now := time.Now()
	session = &Session{
		Source:       source,
		StartTime:    now,
		LastActivity: now,
	}
	m.sessions[source] = session

	m.logger.Info("Created new device session", slog.String("source", source))

	return session
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(source string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[source]
	return session, exists
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions (for monitoring)
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// SyncMap generates the sync map for the records a session holds so far.
func (m *Manager) SyncMap(source string) (timesync.SyncMap, error) {
	session, exists := m.GetSession(source)
	if !exists {
		return timesync.SyncMap{}, timesync.ErrNoPackets
	}
	return m.builder.GenerateSyncMap(session.Results())
}

// RemoveSession finalizes a session and removes it
func (m *Manager) RemoveSession(source string) bool {
	m.mu.Lock()
	session, exists := m.sessions[source]
	if exists {
		delete(m.sessions, source)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.close()
	m.finalize(session)
	return true
}

// finalize builds the session's sync map and exports its records.
func (m *Manager) finalize(session *Session) {
	info := session.GetSessionInfo()
	results := session.Results()

	logger := m.logger.With(slog.String("source", session.Source))

	if m.exporter != nil {
		summary, err := m.exporter.Export(exportName(session), results)
		if err != nil {
			logger.Error("Failed to export session", slog.String("error", err.Error()))
		} else {
			logger.Info("Session exported",
				slog.String("run_id", summary.RunID.String()),
				slog.Int("files", len(summary.Files)),
			)
		}
	}

	syncMap, err := m.builder.GenerateSyncMap(results)
	if m.exporter == nil && m.metrics != nil {
		m.metrics.RecordSyncMap(err == nil)
	}
	if err != nil {
		logger.Warn("No sync map for session",
			slog.Uint64("packets", info.Packets),
			slog.Uint64("sync_packets", info.SyncPackets),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Session sync map generated",
			slog.Float64("te0", syncMap.TE0),
			slog.Float64("te1", syncMap.TE1),
			slog.Float64("tl0", syncMap.TL0),
			slog.Float64("tl1", syncMap.TL1),
			slog.Int("time_syncs", syncMap.SamplesUsed),
		)
	}

	logger.Info("Device session removed",
		slog.Duration("duration", info.LastActivity.Sub(info.StartTime)),
		slog.Uint64("packets", info.Packets),
		slog.Uint64("errors", info.Errors),
		slog.Uint64("lost_packets", info.LostPackets),
		slog.Float64("loss_rate", info.LossRate),
	)
}

// exportName is the pseudo file name a session is exported under.
func exportName(s *Session) string {
	source := strings.NewReplacer(":", "_", ".", "-", "[", "", "]", "").Replace(s.Source)
	return "udp_" + source + "_" + s.StartTime.Format("2006-01-02_15-04-05") + ".csv"
}

// Stop finalizes all sessions and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.cancel()
	<-m.cleanup

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.close()
		m.finalize(session)
	}

	m.logger.Info("Session manager stopped", slog.Int("finalized_sessions", len(sessions)))
}

// startCleanupRoutine runs in a separate goroutine to finalize idle sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	interval := m.checkInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

func (m *Manager) checkInterval() time.Duration {
	interval := 30 * time.Second
	if half := m.timeout / 2; half > 0 && half < interval {
		interval = half
	}
	return interval
}

// cleanupExpiredSessions finalizes sessions that have been idle for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for source, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.timeout {
			expired = append(expired, source)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle sessions", slog.Int("expired_count", len(expired)))

		for _, source := range expired {
			m.RemoveSession(source)
		}
	}
}

// Results returns a copy of the session's records in arrival order.
func (s *Session) Results() []protocol.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.Result, len(s.results))
	copy(out, s.results)
	return out
}

// GetSessionInfo returns session information for monitoring and APIs
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		Source:       s.Source,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Duration:     time.Since(s.StartTime),
		Records:      uint64(len(s.results)),
		Packets:      s.packets,
		Errors:       s.errors,
		SyncPackets:  s.syncPackets,
		LastSequence: s.lastSequence,
		LostPackets:  s.sequence.lost(),
		Reordered:    s.sequence.reordered,
		Duplicates:   s.sequence.duplicates,
		LossRate:     lossRate(s.sequence.lost(), s.packets),
	}
}

func lossRate(lost, received uint64) float64 {
	if lost+received == 0 {
		return 0
	}
	return float64(lost) / float64(lost+received)
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	Source       string        `json:"source"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`
	Records      uint64        `json:"records"`
	Packets      uint64        `json:"packets"`
	Errors       uint64        `json:"errors"`
	SyncPackets  uint64        `json:"sync_packets"`
	LastSequence uint32        `json:"last_sequence"`
	LostPackets  uint64        `json:"lost_packets"`
	Reordered    uint64        `json:"reordered_packets"`
	Duplicates   uint64        `json:"duplicate_packets"`
	LossRate     float64       `json:"loss_rate"`
}
