package mqtt

import (
	"context"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/trena/core/mqtt"
)

// Request acts as the remote controller: it publishes payload on the command
// topic and returns the first message received on the result topic. The
// subscription is in place before the command is sent.
func Request(ctx context.Context, cfg Config, payload string) (string, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	opts, err := NewClientOptions(cfg, cfg.NewClientID())
	if err != nil {
		return "", err
	}
	cli := newMQTTClient(opts)
	if err := waitToken(cli.Connect(), cfg.connectTimeout()); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer cli.Disconnect(250)

	replies := make(chan string, 1)
	sub := cli.Subscribe(cfg.ResultTopic, cfg.qos("result"), func(_ paho.Client, msg paho.Message) {
		select {
		case replies <- string(msg.Payload()):
		default:
		}
	})
	if err := waitToken(sub, cfg.connectTimeout()); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", cfg.ResultTopic, err)
	}
	if err := waitToken(cli.Publish(cfg.CommandTopic, cfg.qos("command"), false, payload), cfg.connectTimeout()); err != nil {
		return "", fmt.Errorf("publish %s: %w", cfg.CommandTopic, err)
	}

	select {
	case r := <-replies:
		return r, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w on %s: %v", coremqtt.ErrNoReply, cfg.ResultTopic, ctx.Err())
	}
}
