package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"enrollsync/pkg/config"
	"enrollsync/pkg/logger"
)

// FeishuNotifier sends operational alerts to Feishu (Lark)
type FeishuNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewFeishuNotifier creates a new Feishu notifier
func NewFeishuNotifier() *FeishuNotifier {
	// Priority: config file > environment variable
	var webhookURL string
	if config.GlobalConfig != nil && config.GlobalConfig.Notification.FeishuWebhookURL != "" {
		webhookURL = config.GlobalConfig.Notification.FeishuWebhookURL
		logger.Info("Using Feishu webhook URL from config file")
	} else {
		webhookURL = os.Getenv("FEISHU_WEBHOOK_URL")
		if webhookURL != "" {
			logger.Info("Using Feishu webhook URL from environment variable")
		}
	}

	if webhookURL == "" {
		logger.Warn("Feishu webhook URL not configured (check config file or FEISHU_WEBHOOK_URL env), Feishu notifications will be disabled")
	}

	return &FeishuNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// DeadLetterNotification reports an enrollment job dropped into the
// dead-letter queue after exhausting retries or failing terminally.
type DeadLetterNotification struct {
	EventID      string
	EventType    string
	EnrollmentID string
	CourseID     string
	Reason       string
	FailedAt     time.Time
}

// SendDeadLetterNotification alerts operators about a dead-lettered job
func (f *FeishuNotifier) SendDeadLetterNotification(ctx context.Context, notification *DeadLetterNotification) error {
	if f.webhookURL == "" {
		logger.WarnCtx(ctx, "Feishu webhook URL not configured, skipping notification")
		return nil
	}

	message := f.buildDeadLetterMessage(notification)

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal Feishu message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", f.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Feishu notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Feishu API returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "Feishu notification sent for dead-lettered event: %s", notification.EventID)
	return nil
}

// buildDeadLetterMessage builds a Feishu message card for dead-lettered jobs
func (f *FeishuNotifier) buildDeadLetterMessage(notification *DeadLetterNotification) map[string]interface{} {
	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"template": "red",
				"title": map[string]interface{}{
					"content": "Enrollment Event Dead-Lettered",
					"tag":     "plain_text",
				},
			},
			"elements": []interface{}{
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Event**: %s (%s)\nThe event could not be applied and requires manual attention", notification.EventID, notification.EventType),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "div",
					"fields": []interface{}{
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Enrollment**\n%s", notification.EnrollmentID),
								"tag":     "lark_md",
							},
						},
						map[string]interface{}{
							"is_short": true,
							"text": map[string]interface{}{
								"content": fmt.Sprintf("**Course**\n%s", notification.CourseID),
								"tag":     "lark_md",
							},
						},
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Reason**: %s", notification.Reason),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "div",
					"text": map[string]interface{}{
						"content": fmt.Sprintf("**Failed At**: %s", notification.FailedAt.Format("2006-01-02 15:04:05")),
						"tag":     "lark_md",
					},
				},
				map[string]interface{}{
					"tag": "hr",
				},
				map[string]interface{}{
					"tag": "note",
					"elements": []interface{}{
						map[string]interface{}{
							"content": "The job stays in the dead-letter queue for inspection. Fix the underlying data and requeue it manually.",
							"tag":     "plain_text",
						},
					},
				},
			},
		},
	}
}
