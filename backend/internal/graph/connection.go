package graph

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

const (
	// operationTimeout is the hard cap on any single store operation
	operationTimeout = 30 * time.Second

	// probeTimeout bounds the liveness probe used when (re)connecting
	probeTimeout = 10 * time.Second

	// maxReconnectAttempts bounds one reconnect cycle before giving up
	maxReconnectAttempts = 5

	// reconnectDelay separates reconnect attempts within a cycle
	reconnectDelay = 5 * time.Second

	// healthCheckInterval is the cadence of the background liveness probe
	healthCheckInterval = 30 * time.Second

	// healthCheckDebounce suppresses probes that arrive too close together
	healthCheckDebounce = 15 * time.Second
)

const (
	readMode  = neo4j.AccessModeRead
	writeMode = neo4j.AccessModeWrite
)

// Connection owns the pooled Neo4j driver. Connectivity failures never
// propagate to callers: operations degrade to an empty result and a
// background reconnect is scheduled instead.
type Connection struct {
	uri      string
	username string
	password string
	database string
	logger   *zap.Logger

	mu              sync.RWMutex
	driver          neo4j.DriverWithContext
	available       bool
	reconnecting    bool
	lastHealthCheck time.Time

	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewConnection creates an unconnected Connection
func NewConnection(uri, username, password, database string) *Connection {
	return &Connection{
		uri:      uri,
		username: username,
		password: password,
		database: database,
		logger:   logger.Get(),
		stopCh:   make(chan struct{}),
	}
}

// Connect establishes the pooled driver and verifies liveness. On failure
// it schedules a bounded reconnect cycle and returns false; it never
// panics or returns an error.
func (c *Connection) Connect(ctx context.Context) bool {
	if c.connectOnce(ctx) {
		return true
	}
	c.scheduleReconnect()
	return false
}

func (c *Connection) connectOnce(ctx context.Context) bool {
	driver, err := neo4j.NewDriverWithContext(
		c.uri,
		neo4j.BasicAuth(c.username, c.password, ""),
		func(cfg *neo4j.Config) {
			cfg.MaxConnectionPoolSize = 50
			cfg.SocketConnectTimeout = probeTimeout
		},
	)
	if err != nil {
		c.logger.Warn("Failed to create Neo4j driver",
			zap.String("uri", c.uri),
			zap.Error(err))
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(probeCtx); err != nil {
		_ = driver.Close(context.Background())
		c.logger.Warn("Neo4j connectivity probe failed",
			zap.String("uri", c.uri),
			zap.Error(err))
		return false
	}

	c.mu.Lock()
	if c.driver != nil {
		_ = c.driver.Close(context.Background())
	}
	c.driver = driver
	c.available = true
	c.mu.Unlock()

	c.logger.Info("Connected to Neo4j", zap.String("uri", c.uri))
	return true
}

// scheduleReconnect starts one bounded reconnect cycle unless one is
// already running
func (c *Connection) scheduleReconnect() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}()

		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(reconnectDelay):
			}

			if c.connectOnce(context.Background()) {
				return
			}
			c.logger.Warn("Neo4j reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxReconnectAttempts))
		}
		c.logger.Error("Giving up on Neo4j reconnect; store unavailable",
			zap.Int("attempts", maxReconnectAttempts))
	}()
}

// StartHealthChecks runs the supervised background liveness probe until
// Stop is called
func (c *Connection) StartHealthChecks() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.healthCheck()
			}
		}
	}()
}

func (c *Connection) healthCheck() {
	c.mu.Lock()
	if time.Since(c.lastHealthCheck) < healthCheckDebounce {
		c.mu.Unlock()
		return
	}
	c.lastHealthCheck = time.Now()
	driver := c.driver
	c.mu.Unlock()

	if driver == nil {
		c.scheduleReconnect()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		c.logger.Warn("Neo4j health check failed", zap.Error(err))
		c.markUnavailable()
		c.scheduleReconnect()
	}
}

// Stop shuts down the health checker, any in-flight reconnect cycle, and
// the driver
func (c *Connection) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCh)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver != nil {
		_ = c.driver.Close(context.Background())
		c.driver = nil
	}
	c.available = false
}

// IsAvailable reports whether the store is currently reachable
func (c *Connection) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available && c.driver != nil
}

func (c *Connection) markUnavailable() {
	c.mu.Lock()
	c.available = false
	c.mu.Unlock()
}

// run executes one query under the operation timeout and returns the
// collected records. Connectivity-class failures mark the connection dead
// and schedule a reconnect before returning the error.
func (c *Connection) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]interface{}) ([]*neo4j.Record, error) {
	c.mu.RLock()
	driver := c.driver
	available := c.available
	database := c.database
	c.mu.RUnlock()

	if driver == nil || !available {
		return nil, errNotConnected
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	session := driver.NewSession(opCtx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: database,
	})
	defer session.Close(opCtx)

	result, err := session.Run(opCtx, query, params)
	if err != nil {
		c.handleQueryError(err)
		return nil, err
	}

	records, err := result.Collect(opCtx)
	if err != nil {
		c.handleQueryError(err)
		return nil, err
	}

	return records, nil
}

func (c *Connection) handleQueryError(err error) {
	if isConnectivityError(err) {
		c.logger.Warn("Neo4j connectivity lost mid-operation", zap.Error(err))
		c.markUnavailable()
		c.scheduleReconnect()
	}
}

// Read runs a read query, absorbing all failures into (nil, false)
func (c *Connection) Read(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, bool) {
	records, err := c.run(ctx, readMode, query, params)
	if err != nil {
		if err != errNotConnected {
			c.logger.Error("Read query failed", zap.Error(err))
		}
		return nil, false
	}
	return records, true
}

// Write runs a write query, absorbing all failures into (nil, false)
func (c *Connection) Write(ctx context.Context, query string, params map[string]interface{}) ([]*neo4j.Record, bool) {
	records, err := c.run(ctx, writeMode, query, params)
	if err != nil {
		if err != errNotConnected {
			c.logger.Error("Write query failed", zap.Error(err))
		}
		return nil, false
	}
	return records, true
}

// WithRetry retries op only on transaction-conflict errors, with delay =
// baseDelay * 2^attempt, up to maxAttempts total attempts. Any other error
// is returned immediately.
func (c *Connection) WithRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay * (1 << uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = op()
		if err == nil {
			return nil
		}
		if !isTransientConflict(err) {
			return err
		}
		c.logger.Warn("Transient conflict, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))
	}
	return err
}

// errNotConnected signals "store unavailable" internally; it is absorbed
// before reaching repository callers
var errNotConnected = &notConnectedError{}

type notConnectedError struct{}

func (e *notConnectedError) Error() string { return "neo4j connection not available" }

// connectivityPatterns classify errors that indicate a dead connection
// rather than a bad query
var connectivityPatterns = []string{
	"connection closed",
	"closed",
	"timeout",
	"timed out",
	"refused",
	"connection reset",
	"broken pipe",
	"no route to host",
	"network",
	"connectivity",
	"server unavailable",
	"pool closed",
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectivityPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// conflictPatterns classify concurrent-write conflicts that are safe to
// retry
var conflictPatterns = []string{
	"transienterror",
	"transient error",
	"deadlock",
	"lockclient",
	"could not be locked",
	"conflicting transactions",
}

func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range conflictPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
