package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	subjectCreateService = "fleet.service.create"
	subjectSendPlayer    = "fleet.player.send"
	subjectRunCommand    = "fleet.service.command"

	natsMaxReconnects  = 10
	natsReconnectWait  = 2 * time.Second
	defaultCallTimeout = 30 * time.Second
)

// NATSProvisioner drives the fleet controller over NATS request/reply.
type NATSProvisioner struct {
	nc      *nats.Conn
	timeout time.Duration
}

// Connect dials the NATS server and returns a ready provisioner.
func Connect(natsURL string) (*NATSProvisioner, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSProvisioner{nc: nc, timeout: defaultCallTimeout}, nil
}

// Conn exposes the underlying connection so other components (event
// publishing) can share it.
func (p *NATSProvisioner) Conn() *nats.Conn {
	return p.nc
}

// NewNATSProvisioner wraps an existing connection (tests share one).
func NewNATSProvisioner(nc *nats.Conn) *NATSProvisioner {
	return &NATSProvisioner{nc: nc, timeout: defaultCallTimeout}
}

type createRequest struct {
	TaskRef string `json:"task_ref"`
}

type createReply struct {
	InstanceRef string `json:"instance_ref"`
	Error       string `json:"error,omitempty"`
}

type sendRequest struct {
	Player      string `json:"player"`
	InstanceRef string `json:"instance_ref"`
}

type commandRequest struct {
	InstanceRef string `json:"instance_ref"`
	Command     string `json:"command"`
}

type ackReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (p *NATSProvisioner) CreateAndStart(ctx context.Context, taskRef string) (string, error) {
	payload, err := json.Marshal(createRequest{TaskRef: taskRef})
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, subjectCreateService, payload)
	if err != nil {
		return "", fmt.Errorf("create service for task %q: %w", taskRef, err)
	}

	var reply createReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decode create reply: %w", err)
	}
	if reply.Error != "" {
		return "", fmt.Errorf("fleet rejected create for task %q: %s", taskRef, reply.Error)
	}
	if reply.InstanceRef == "" {
		return "", fmt.Errorf("fleet returned empty instance ref for task %q", taskRef)
	}

	log.Info().Str("task", taskRef).Str("instance", reply.InstanceRef).Msg("instance provisioned")
	return reply.InstanceRef, nil
}

func (p *NATSProvisioner) SendToInstance(ctx context.Context, playerName, instanceRef string) error {
	payload, err := json.Marshal(sendRequest{Player: playerName, InstanceRef: instanceRef})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}
	return p.call(ctx, subjectSendPlayer, payload, fmt.Sprintf("send %s to %s", playerName, instanceRef))
}

func (p *NATSProvisioner) RunRemoteCommand(ctx context.Context, instanceRef, command string) error {
	payload, err := json.Marshal(commandRequest{InstanceRef: instanceRef, Command: command})
	if err != nil {
		return fmt.Errorf("marshal command request: %w", err)
	}
	return p.call(ctx, subjectRunCommand, payload, fmt.Sprintf("run command on %s", instanceRef))
}

func (p *NATSProvisioner) call(ctx context.Context, subject string, payload []byte, op string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var reply ackReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("%s: decode reply: %w", op, err)
	}
	if !reply.OK {
		return fmt.Errorf("%s: fleet refused: %s", op, reply.Error)
	}
	return nil
}

// Close drains the underlying connection.
func (p *NATSProvisioner) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
	}
}
