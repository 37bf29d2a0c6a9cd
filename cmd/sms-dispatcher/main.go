package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"registration-service/internal/client"
	"registration-service/internal/config"
	"registration-service/internal/i18n"
	"registration-service/internal/sms"
	"registration-service/internal/util"
)

const sendTimeout = 15 * time.Second

func main() {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	sender, err := sms.NewTwilioSender(cfg.Twilio)
	if err != nil {
		util.Fatal("Failed to initialize SMS sender", util.ErrorField(err))
	}
	dispatcher := sms.NewDispatcher(sender, i18n.Default(), util.Component("sms"))

	consumer := client.NewKafkaConsumer(cfg, cfg.Registration.SMSTopic, cfg.Kafka.ConsumerGroup)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	util.Info("SMS dispatcher started",
		util.String("topic", cfg.Registration.SMSTopic),
		util.String("group_id", cfg.Kafka.ConsumerGroup))

	for {
		msg, err := consumer.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			util.Error("Failed to consume SMS request", util.ErrorField(err))
			time.Sleep(time.Second)
			continue
		}

		// Delivery is best effort; a failed send is logged and the offset moves on.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		if err := dispatcher.Handle(sendCtx, msg.Value); err != nil && errors.Is(err, sms.ErrInvalidPayload) {
			util.Warn("Dropping malformed SMS request",
				util.Int64("offset", msg.Offset),
				util.ErrorField(err))
		}
		cancel()
	}

	util.Info("SMS dispatcher stopped")
}
