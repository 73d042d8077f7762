package notify

import (
	"context"
	"fmt"
	"log/slog"

	"zonafiscal/internal/platform/email"
	"zonafiscal/internal/platform/slack"
)

// Dispatcher decouples state transitions from notification delivery: callers
// enqueue and move on, a single worker drains the queue, and every delivery
// failure is a logged warning, never an error surfaced to the caller.
type Dispatcher struct {
	mailer  email.Mailer
	slack   *slack.Client
	from    string
	baseURL string
	queue   chan task
}

type task struct {
	kind string
	run  func(context.Context) error
}

func NewDispatcher(mailer email.Mailer, slackClient *slack.Client, from, baseURL string) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		slack:   slackClient,
		from:    from,
		baseURL: baseURL,
		queue:   make(chan task, 128),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	go d.worker(ctx)
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			if err := t.run(ctx); err != nil {
				slog.Warn("notification delivery failed", "kind", t.kind, "err", err)
			}
		}
	}
}

func (d *Dispatcher) enqueue(kind string, run func(context.Context) error) {
	select {
	case d.queue <- task{kind: kind, run: run}:
	default:
		slog.Warn("notification queue full, dropping", "kind", kind)
	}
}

// SendReactivationEmail mails the reactivation link to the account holder.
func (d *Dispatcher) SendReactivationEmail(to, name, token string) {
	if d == nil || d.mailer == nil {
		return
	}
	link := fmt.Sprintf("%s/reativar?token=%s", d.baseURL, token)
	subject := "Zona Fiscal - Reativação da sua conta"
	greeting := "Olá,"
	if name != "" {
		greeting = fmt.Sprintf("Olá %s,", name)
	}
	body := fmt.Sprintf(
		"%s\n\n"+
			"Recebemos uma solicitação para reativar a sua conta na Zona Fiscal.\n"+
			"Para confirmar seus dados e prosseguir, acesse o link abaixo em até 7 dias:\n\n"+
			"%s\n\n"+
			"Se você não solicitou a reativação, ignore este e-mail.\n\n"+
			"Equipe Zona Fiscal",
		greeting, link)

	d.enqueue("email", func(ctx context.Context) error {
		return d.mailer.Send(ctx, d.from, to, subject, body)
	})
}

// Alert posts a business event to Slack. A nil Slack client disables alerts.
func (d *Dispatcher) Alert(payload slack.Payload) {
	if d == nil || d.slack == nil {
		return
	}
	d.enqueue("slack", func(ctx context.Context) error {
		return d.slack.Post(ctx, payload)
	})
}
