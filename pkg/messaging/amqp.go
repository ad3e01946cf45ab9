package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const (
	dialTimeout    = 5 * time.Second
	publishTimeout = 200 * time.Millisecond

	// analysis events are only useful to consumers for a day
	messageExpiration = "86400000"
)

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	AutoDelete   bool
}

// channel is the subset of *amqp.Channel the client publishes through
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPClient publishes analysis events to a durable AMQP queue
type AMQPClient struct {
	logger    *logrus.Entry
	config    AMQPConfig
	conn      *amqp.Connection
	channel   channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a disconnected AMQP client
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true
	config.AutoDelete = false

	return &AMQPClient{
		logger:   logger.WithField("component", "amqp"),
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the server, opens a channel and declares the queue
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		return errors.NewInvalidInput("AMQP URL or queue name not configured")
	}

	conn, err := dialWithTimeout(c.config.URL, dialTimeout)
	if err != nil {
		metrics.SetAMQPConnectionStatus(false)
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open AMQP channel")
	}

	queue, err := ch.QueueDeclare(
		c.config.QueueName,
		c.config.Durable,
		c.config.AutoDelete,
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return errors.Wrap(err, "failed to declare AMQP queue").WithField("queue", c.config.QueueName)
	}

	c.conn = conn
	c.channel = ch
	c.connected = true
	c.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithFields(logrus.Fields{
		"queue":     queue.Name,
		"messages":  queue.Messages,
		"consumers": queue.Consumers,
	}).Info("Connected to AMQP server")

	go c.monitorConnection(conn)
	return nil
}

func dialWithTimeout(url string, timeout time.Duration) (*amqp.Connection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	results := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.Dial(url)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case results <- dialResult{conn, err}:
		}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "failed to connect to AMQP server")
		}
		return r.conn, nil
	case <-ctx.Done():
		return nil, errors.New("connection to AMQP server timed out").WithField("timeout", timeout.String())
	}
}

// Disconnect closes the channel and connection
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if !c.connected {
		return
	}

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// Close implements Publisher
func (c *AMQPClient) Close() {
	c.Disconnect()
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishAnalysis publishes one analysis event. It gives up after a short
// timeout so a slow broker never delays the analysis response.
func (c *AMQPClient) PublishAnalysis(ctx context.Context, event AnalysisEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal analysis event")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	published := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		if !c.connected || c.channel == nil {
			published <- errors.ErrNotConnected
			return
		}

		published <- c.channel.Publish(
			c.config.ExchangeName,
			c.config.RoutingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				MessageId:    event.EventID,
				Timestamp:    event.Timestamp,
				Type:         "ticketfeed.analysis",
				Expiration:   messageExpiration,
			},
		)
	}()

	select {
	case err = <-published:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "publishing to AMQP timed out")
	}

	if err != nil {
		metrics.RecordAMQPPublish(c.config.QueueName, "error")
		if errors.IsErrorType(err, errors.ErrNotConnected) {
			return err
		}
		return errors.Wrap(err, "failed to publish analysis event").WithField("event_id", event.EventID)
	}

	metrics.RecordAMQPPublish(c.config.QueueName, "success")
	c.logger.WithField("event_id", event.EventID).Debug("Published analysis event")
	return nil
}

// monitorConnection reconnects with exponential backoff when the broker
// closes the connection
func (c *AMQPClient) monitorConnection(conn *amqp.Connection) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.connMutex.RLock()
	stop := c.stopChan
	c.connMutex.RUnlock()

	select {
	case <-stop:
		return
	case closeErr, ok := <-closeChan:
		if !ok {
			return
		}

		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

		for attempt := 1; attempt <= 10; attempt++ {
			err := c.Connect()
			if err == nil {
				c.logger.WithField("attempt", attempt).Info("Reconnected to AMQP server")
				return
			}
			c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}

			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
		}
	}
}
