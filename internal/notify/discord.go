package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
)

// Embed colours per level.
const (
	colorHigh   = 0xE74C3C
	colorMedium = 0xF39C12
	colorLow    = 0x2ECC71
)

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DiscordSender posts alerts to a Discord webhook as an embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one embed describing the alert.
func (d *DiscordSender) Send(ctx context.Context, a domain.Alert) error {
	embed := discordEmbed{
		Title:       title(a),
		Description: a.Message,
		Color:       levelColor(a.Level),
		Fields: []discordField{
			{Name: "Score", Value: fmt.Sprintf("%.1f%%", a.RiskScore*100), Inline: true},
			{Name: "Previous", Value: string(a.Previous), Inline: true},
		},
	}
	if !a.CreatedAt.IsZero() {
		embed.Timestamp = a.CreatedAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(map[string]any{"embeds": []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	return post(ctx, d.client, "discord", d.webhookURL, body)
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }

func levelColor(l domain.RiskLevel) int {
	switch l {
	case domain.RiskLevelHigh:
		return colorHigh
	case domain.RiskLevelMedium:
		return colorMedium
	default:
		return colorLow
	}
}
