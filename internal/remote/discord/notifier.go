// Package discord posts flow lifecycle notifications to a Discord webhook.
package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/ferago/launchpilot/internal/event"
)

const (
	colorSuccess = 0x2ecc71
	colorFailure = 0xe74c3c
)

type Notifier struct {
	client *webhookClient
	logger *slog.Logger
}

func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client: newWebhookClient(webhookURL),
		logger: logger,
	}
}

// Handle is registered on the event listener; only flow completion events
// produce a webhook message.
func (n *Notifier) Handle(ctx context.Context, e event.Event) error {
	finished, ok := e.(event.FlowFinishedEvent)
	if !ok {
		return nil
	}

	color := colorSuccess
	if !finished.Success {
		color = colorFailure
	}
	embed := &discordgo.MessageEmbed{
		Title:       finished.Message(),
		Description: finished.Detail,
		Color:       color,
		Timestamp:   finished.OccurredAt().Format("2006-01-02T15:04:05Z07:00"),
	}

	if err := n.client.SendEmbed(ctx, embed); err != nil {
		n.logger.Error("failed to send discord notification", slog.Any("error", err))
	}
	return nil
}
