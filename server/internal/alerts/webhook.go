package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rich1707/Customer-Churn/server/internal/config"
)

const deliveryTimeout = 10 * time.Second

// target is one webhook endpoint. The URL is looked up on every delivery so
// a rotated secret takes effect without a restart.
type target struct {
	kind    string
	url     func() string
	payload func(*Alert) any
}

func newTargets(hooks []config.WebhookConfig) []target {
	out := make([]target, 0, len(hooks))
	for _, wh := range hooks {
		var build func(*Alert) any
		switch wh.Type {
		case "slack":
			build = slackPayload
		case "teams":
			build = teamsPayload
		case "http":
			build = httpPayload
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		out = append(out, target{kind: wh.Type, url: wh.URL, payload: build})
	}
	return out
}

// deliver posts a to every target with a resolvable URL. Failures are logged.
func (e *Engine) deliver(a *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	for _, t := range e.targets {
		url := t.url()
		if url == "" {
			continue
		}
		if err := e.post(ctx, url, t.payload(a)); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", t.kind,
				"rule", a.RuleName,
				"source", a.SourceID,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", t.kind, "rule", a.RuleName, "state", a.State)
	}
}

func slackPayload(a *Alert) any {
	label, color := style(a.Severity)
	text := fmt.Sprintf("*%s* %s", label, a.Message)
	if a.State == StateResolved {
		text = fmt.Sprintf("*[RESOLVED]* %s on %s", a.RuleName, a.SourceID)
		color = resolvedColor
	}
	return map[string]any{
		"text": text,
		"attachments": []map[string]any{{
			"color": "#" + color,
			"fields": []map[string]any{
				{"title": "Source", "value": a.SourceID, "short": true},
				{"title": "Value", "value": fmt.Sprintf("%.2f", a.Value), "short": true},
			},
		}},
	}
}

func teamsPayload(a *Alert) any {
	_, color := style(a.Severity)
	if a.State == StateResolved {
		color = resolvedColor
	}
	facts := []map[string]string{
		{"name": "Source", "value": a.SourceID},
		{"name": "State", "value": a.State},
		{"name": "Value", "value": fmt.Sprintf("%.2f", a.Value)},
		{"name": "Fired", "value": a.FiredAt.UTC().Format(time.RFC3339)},
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("Churn alert: %s (%s)", a.RuleName, a.SourceID),
		"text":       a.Message,
		"sections":   []map[string]any{{"facts": facts}},
	}
}

func httpPayload(a *Alert) any {
	return map[string]any{"alert": a}
}

func (e *Engine) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

const resolvedColor = "2EB67D"

var severityStyles = map[string][2]string{
	"critical": {"[CRITICAL]", "FF4F6A"},
	"warning":  {"[WARNING]", "FFAB40"},
	"info":     {"[INFO]", "00D4FF"},
}

// style returns the label and hex colour of a severity; unknown values are
// shown as info.
func style(severity string) (label, color string) {
	s, ok := severityStyles[severity]
	if !ok {
		s = severityStyles["info"]
	}
	return s[0], s[1]
}
