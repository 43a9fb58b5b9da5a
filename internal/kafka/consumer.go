package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/service"
)

// RouteSubmitter records routes on behalf of a member
type RouteSubmitter interface {
	SubmitRoute(ctx context.Context, caller *domain.Identity, in service.RouteInput) (*service.SubmitResult, error)
}

// RouteMessage is a route submission published by a gym kiosk. The kiosk
// has already identified the member, so the message carries the identity.
type RouteMessage struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Provider    string   `json:"provider,omitempty"`
	Grade       string   `json:"grade"`
	GradePoints int64    `json:"grade_points,omitempty"`
	RouteName   string   `json:"route_name,omitempty"`
	BonusIDs    []string `json:"bonus_ids,omitempty"`
}

var errInvalidMessage = errors.New("invalid route message")

// Decode parses and validates a kiosk message
func Decode(value []byte) (*domain.Identity, service.RouteInput, error) {
	var msg RouteMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, service.RouteInput{}, fmt.Errorf("%w: %w", errInvalidMessage, err)
	}
	if strings.TrimSpace(msg.UserID) == "" || strings.TrimSpace(msg.Grade) == "" {
		return nil, service.RouteInput{}, fmt.Errorf("%w: user_id and grade are required", errInvalidMessage)
	}
	if msg.GradePoints < 0 || msg.GradePoints > domain.MaxCustomGradePoints {
		return nil, service.RouteInput{}, fmt.Errorf("%w: grade_points must be between 0 and %d", errInvalidMessage, domain.MaxCustomGradePoints)
	}

	var provider domain.Provider
	if err := provider.UnmarshalText([]byte(msg.Provider)); err != nil {
		return nil, service.RouteInput{}, fmt.Errorf("%w: %w", errInvalidMessage, err)
	}

	identity := &domain.Identity{
		ID:          msg.UserID,
		DisplayName: msg.DisplayName,
		Email:       msg.Email,
		Provider:    provider,
	}
	input := service.RouteInput{
		Grade:       msg.Grade,
		GradePoints: msg.GradePoints,
		RouteName:   msg.RouteName,
		BonusIDs:    msg.BonusIDs,
	}
	return identity, input, nil
}

type pendingRoute struct {
	identity  *domain.Identity
	input     service.RouteInput
	partition int32
	offset    int64
}

// Consumer consumes kiosk route submissions from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	submitter     RouteSubmitter
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, submitter RouteSubmitter, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		submitter:     submitter,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// submitBatch commits routes one by one in offset order. A rejected route
// is logged and skipped; it does not hold back the rest of the batch.
func (c *Consumer) submitBatch(ctx context.Context, batch []pendingRoute) int {
	committed := 0
	for _, p := range batch {
		res, err := c.submitter.SubmitRoute(ctx, p.identity, p.input)
		if err != nil {
			c.logger.Error("failed to submit kiosk route",
				"error", err,
				"user_id", p.identity.ID,
				"partition", p.partition,
				"offset", p.offset,
			)
			continue
		}
		committed++
		c.logger.Debug("kiosk route submitted",
			"user_id", p.identity.ID,
			"route_id", res.Record.ID,
			"total_points", res.TotalPoints,
		)
	}
	return committed
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Offsets are
// marked only after the batch holding them has been handed to the
// submitter.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]pendingRoute, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			committed := h.consumer.submitBatch(ctx, batch)
			cancel()
			h.consumer.logger.Debug("processed batch", "batch_size", len(batch), "committed", committed)
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}
			last = message

			identity, input, err := Decode(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping kiosk message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}

			batch = append(batch, pendingRoute{
				identity:  identity,
				input:     input,
				partition: message.Partition,
				offset:    message.Offset,
			})

			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
