package events

import (
	"context"
	"encoding/json"

	"github.com/hilthontt/bingo/internal/domain"
	"github.com/hilthontt/bingo/internal/infrastructure/contracts"
	"github.com/hilthontt/bingo/internal/infrastructure/messaging"
)

// Publisher announces game lifecycle changes to the outside world.
type Publisher interface {
	PublishGameCreated(ctx context.Context, room domain.Room) error
	PublishGameStarted(ctx context.Context, room domain.Room) error
	PublishGameFinished(ctx context.Context, room domain.Room) error
	PublishGameTerminated(ctx context.Context, room domain.Room) error
}

type messagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
}

type GamePublisher struct {
	rabbitmq messagePublisher
}

func NewGamePublisher(rabbitmq *messaging.RabbitMQ) *GamePublisher {
	return &GamePublisher{
		rabbitmq: rabbitmq,
	}
}

func (p *GamePublisher) PublishGameCreated(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventGameCreated, room)
}

func (p *GamePublisher) PublishGameStarted(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventGameStarted, room)
}

func (p *GamePublisher) PublishGameFinished(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventGameFinished, room)
}

func (p *GamePublisher) PublishGameTerminated(ctx context.Context, room domain.Room) error {
	return p.publish(ctx, contracts.EventGameTerminated, room)
}

func (p *GamePublisher) publish(ctx context.Context, routingKey string, room domain.Room) error {
	gameEventJSON, err := json.Marshal(messaging.GameEventData{Game: room})
	if err != nil {
		return err
	}

	return p.rabbitmq.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		HostID: room.HostID,
		Data:   gameEventJSON,
	})
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishGameCreated(context.Context, domain.Room) error    { return nil }
func (NopPublisher) PublishGameStarted(context.Context, domain.Room) error    { return nil }
func (NopPublisher) PublishGameFinished(context.Context, domain.Room) error   { return nil }
func (NopPublisher) PublishGameTerminated(context.Context, domain.Room) error { return nil }
