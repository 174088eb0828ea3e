package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/skypro1111/emotibit-sync/internal/config"
	"github.com/skypro1111/emotibit-sync/internal/metrics"
	"github.com/skypro1111/emotibit-sync/internal/protocol"
	"github.com/skypro1111/emotibit-sync/internal/stream"
)

// UDPServer receives raw EmotiBit records, one or more lines per datagram
type UDPServer struct {
	conn       *net.UDPConn
	config     *config.ServerConfig
	logger     *slog.Logger
	sessionMgr *stream.Manager
	metrics    *metrics.Metrics

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// One queue per worker. A source always hashes to the same queue so its
	// records reach the session in arrival order.
	queues []chan *incomingDatagram

	datagramsReceived uint64
	datagramsDropped  uint64
	recordsDecoded    uint64
	decodeErrors      uint64
	mu                sync.RWMutex
}

// incomingDatagram represents a received datagram with metadata
type incomingDatagram struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance. m may be nil.
func NewUDPServer(cfg *config.ServerConfig, logger *slog.Logger, sessionMgr *stream.Manager, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	workers := max(cfg.Workers, 1)
	perWorker := max((cfg.QueueSize+workers-1)/workers, 1)
	queues := make([]chan *incomingDatagram, workers)
	for i := range queues {
		queues[i] = make(chan *incomingDatagram, perWorker)
	}

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		sessionMgr: sessionMgr,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		queues:     queues,
	}
}

// Start begins listening for datagrams
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.GetAddress())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("workers", s.config.Workers),
	)

	for i := range s.queues {
		s.wg.Add(1)
		go s.datagramProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// Workers exit once the receive loop closes the queues
	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_dropped", stats.DatagramsDropped),
		slog.Uint64("records_decoded", stats.RecordsDecoded),
		slog.Uint64("decode_errors", stats.DecodeErrors),
	)

	return nil
}

// receiveLoop is the main datagram receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer func() {
		for _, q := range s.queues {
			close(q)
		}
	}()

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Periodic deadline so cancellation is noticed
		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.GetReadTimeout())); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP datagram", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.datagramsReceived++
		s.mu.Unlock()

		// Copy out of the reused buffer
		data := make([]byte, n)
		copy(data, buffer[:n])

		datagram := &incomingDatagram{
			data:       data,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.queueFor(remoteAddr) <- datagram:
			if s.metrics != nil {
				s.metrics.SetQueueSize(s.queueDepth())
			}
		default:
			s.mu.Lock()
			s.datagramsDropped++
			s.mu.Unlock()

			s.logger.Warn("Datagram processing queue full, dropping datagram",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("datagram_size", n),
			)
		}
	}
}

// queueFor returns the worker queue owning addr
func (s *UDPServer) queueFor(addr *net.UDPAddr) chan *incomingDatagram {
	return s.queues[xxhash.Sum64String(addr.String())%uint64(len(s.queues))]
}

func (s *UDPServer) queueDepth() int {
	depth := 0
	for _, q := range s.queues {
		depth += len(q)
	}
	return depth
}

func (s *UDPServer) queueCapacity() int {
	capacity := 0
	for _, q := range s.queues {
		capacity += cap(q)
	}
	return capacity
}

// datagramProcessor drains one worker queue
func (s *UDPServer) datagramProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Datagram processor started", slog.Int("worker_id", workerID))

	for datagram := range s.queues[workerID] {
		s.handleDatagram(datagram, workerID)
	}

	s.logger.Debug("Datagram processor stopped", slog.Int("worker_id", workerID))
}

// handleDatagram decodes every record line in one datagram
func (s *UDPServer) handleDatagram(datagram *incomingDatagram, workerID int) {
	source := datagram.remoteAddr.String()

	for _, line := range strings.Split(string(datagram.data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordReceived()
		}

		packet, err := protocol.DecodeLine(line)
		s.sessionMgr.Record(source, packet, err)

		if err != nil {
			s.mu.Lock()
			s.decodeErrors++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordDecodeError(protocol.Reason(err))
			}

			s.logger.Warn("Failed to decode record",
				slog.String("remote_addr", source),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
			)
			continue
		}

		s.mu.Lock()
		s.recordsDecoded++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordDecoded(string(packet.TypeTag()))
		}

		s.logger.Debug("Record decoded",
			slog.String("remote_addr", source),
			slog.String("type_tag", string(packet.TypeTag())),
			slog.Uint64("sequence", uint64(packet.SequenceID)),
			slog.Float64("device_timestamp", packet.DeviceTimestamp),
			slog.Int("worker_id", workerID),
		)
	}
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		DatagramsReceived: s.datagramsReceived,
		DatagramsDropped:  s.datagramsDropped,
		RecordsDecoded:    s.recordsDecoded,
		DecodeErrors:      s.decodeErrors,
		ActiveSessions:    uint64(s.sessionMgr.GetActiveSessionCount()),
		QueueSize:         uint64(s.queueDepth()),
		QueueCapacity:     uint64(s.queueCapacity()),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	DatagramsReceived uint64 `json:"datagrams_received"`
	DatagramsDropped  uint64 `json:"datagrams_dropped"`
	RecordsDecoded    uint64 `json:"records_decoded"`
	DecodeErrors      uint64 `json:"decode_errors"`
	ActiveSessions    uint64 `json:"active_sessions"`
	QueueSize         uint64 `json:"queue_size"`
	QueueCapacity     uint64 `json:"queue_capacity"`
}
