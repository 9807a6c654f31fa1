package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Raydrick/docship/internal/logfields"
)

// Event types published on the configured subject.
const (
	TypeRunStarted  = "run.started"
	TypeRunFinished = "run.finished"
)

// RunEvent is the JSON payload describing a pipeline run transition.
type RunEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Branch    string    `json:"branch"`
	Commit    string    `json:"commit,omitempty"`
	Outcome   string    `json:"outcome,omitempty"` // only on run.finished
	Deployed  bool      `json:"deployed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits run events to NATS. A nil Publisher is a no-op, so callers
// can hold one unconditionally and only construct it when NATS is configured.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to NATS and returns a run event publisher.
func NewPublisher(url, subject string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("docship"))
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}
	slog.Info("NATS run event publisher connected", logfields.URL(url), slog.String("subject", subject))
	return &Publisher{conn: conn, subject: subject}, nil
}

// RunStarted publishes a run.started event.
func (p *Publisher) RunStarted(runID, branch, commit string) {
	p.publish(RunEvent{Type: TypeRunStarted, RunID: runID, Branch: branch, Commit: commit})
}

// RunFinished publishes a run.finished event.
func (p *Publisher) RunFinished(runID, branch, commit, outcome string, deployed bool) {
	p.publish(RunEvent{
		Type: TypeRunFinished, RunID: runID, Branch: branch, Commit: commit,
		Outcome: outcome, Deployed: deployed,
	})
}

// publish sends one event; failures are logged, never fatal to the run.
func (p *Publisher) publish(event RunEvent) {
	if p == nil || p.conn == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal run event", logfields.RunID(event.RunID), logfields.Error(err))
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.Warn("Failed to publish run event",
			logfields.RunID(event.RunID),
			slog.String("type", event.Type),
			logfields.Error(err))
		return
	}
	slog.Debug("Published run event", logfields.RunID(event.RunID), slog.String("type", event.Type))
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
