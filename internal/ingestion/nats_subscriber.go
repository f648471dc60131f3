package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. JetStream is the primary
// high-throughput ingestion surface; each subject maps to an event type.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types. Each event type gets its
// own subject so producers scale independently.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "margin.governance.assets.>", EventType: "AssetRegistered", ConsumerName: "ledger-assets", StreamName: "MARGIN_GOVERNANCE"},
		{Subject: "margin.governance.rates.>", EventType: "RateCurveUpdate", ConsumerName: "ledger-rates", StreamName: "MARGIN_GOVERNANCE"},
		{Subject: "margin.governance.risk.>", EventType: "RiskParamUpdate", ConsumerName: "ledger-risk-params", StreamName: "MARGIN_GOVERNANCE"},
		{Subject: "margin.governance.freeze.>", EventType: "FreezeUpdate", ConsumerName: "ledger-freeze", StreamName: "MARGIN_GOVERNANCE"},
		{Subject: "margin.deposits.fungible.>", EventType: "DepositRequested", ConsumerName: "ledger-deposits", StreamName: "MARGIN_DEPOSITS"},
		{Subject: "margin.deposits.nft.>", EventType: "NFTDepositRequested", ConsumerName: "ledger-nft-deposits", StreamName: "MARGIN_DEPOSITS"},
		{Subject: "margin.withdrawals.fungible.>", EventType: "WithdrawalRequested", ConsumerName: "ledger-withdrawals", StreamName: "MARGIN_WITHDRAWALS"},
		{Subject: "margin.withdrawals.nft.>", EventType: "NFTWithdrawalRequested", ConsumerName: "ledger-nft-withdrawals", StreamName: "MARGIN_WITHDRAWALS"},
		{Subject: "margin.transfers.>", EventType: "TransferRequested", ConsumerName: "ledger-transfers", StreamName: "MARGIN_TRANSFERS"},
		{Subject: "margin.batches.>", EventType: "BatchRequested", ConsumerName: "ledger-batches", StreamName: "MARGIN_BATCHES"},
		{Subject: "margin.prices.>", EventType: "PriceUpdate", ConsumerName: "ledger-prices", StreamName: "MARGIN_PRICES"},
		{Subject: "margin.strategy.>", EventType: "StrategyUpdate", ConsumerName: "ledger-strategy", StreamName: "MARGIN_STRATEGY"},
		{Subject: "margin.accrual.>", EventType: "AccrualSweep", ConsumerName: "ledger-accrual", StreamName: "MARGIN_ACCRUAL"},
		{Subject: "margin.liquidation.requested.>", EventType: "LiquidationRequested", ConsumerName: "ledger-liquidation", StreamName: "MARGIN_LIQUIDATION"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "MARGIN_GOVERNANCE",
			Subjects:  []string{"margin.governance.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_DEPOSITS",
			Subjects:  []string{"margin.deposits.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_WITHDRAWALS",
			Subjects:  []string{"margin.withdrawals.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_TRANSFERS",
			Subjects:  []string{"margin.transfers.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_BATCHES",
			Subjects:  []string{"margin.batches.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_PRICES",
			Subjects:  []string{"margin.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_STRATEGY",
			Subjects:  []string{"margin.strategy.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_ACCRUAL",
			Subjects:  []string{"margin.accrual.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "MARGIN_LIQUIDATION",
			Subjects:  []string{"margin.liquidation.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	log.Println("INFO: NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
