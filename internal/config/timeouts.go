package config

import "time"

// Named timeouts used across the application. Values are tuned around the
// LINE platform's webhook delivery window: LINE retries a webhook that does
// not answer within roughly 30 seconds, so processing budgets stay below it.
const (
	// WebhookProcessing bounds async processing of a single webhook event.
	WebhookProcessing = 25 * time.Second

	// WebhookHTTPRead/Write/Idle configure the HTTP server. The webhook body
	// is small; generous idle keeps LINE's keep-alive connections open.
	WebhookHTTPRead  = 10 * time.Second
	WebhookHTTPWrite = 15 * time.Second
	WebhookHTTPIdle  = 120 * time.Second

	// ScraperRequest bounds one scrape (including redirects), before retries.
	ScraperRequest = 10 * time.Second

	// LLMRequest bounds one chat-completion call. Word generation for the
	// largest allowed count fits comfortably inside this.
	LLMRequest = 30 * time.Second

	// SchedulerJob bounds one scheduled fan-out batch, all recipients included.
	SchedulerJob = 5 * time.Minute
)

// LINE Messaging API limits. These mirror the platform documentation and are
// not configurable.
const (
	LINEMaxMessagesPerReply   = 5
	LINEMaxTextMessageLength  = 5000
	LINEMaxPostbackDataLength = 300
)
