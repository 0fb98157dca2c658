package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/logging"
	"github.com/harunnryd/voicetrigger/pkg/redact"
	"github.com/harunnryd/voicetrigger/pkg/resilience"
)

type SMSConfig struct {
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
	// Body may reference {wake_word}, {backend} and {time}.
	Body string `mapstructure:"body"`
	// BreakerThreshold is the number of 429 responses that opens the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

func (c SMSConfig) withDefaults() SMSConfig {
	if c.Body == "" {
		c.Body = "Wake word {wake_word} detected at {time}"
	}
	return c
}

func (c SMSConfig) Validate() error {
	if c.AccountSID == "" || c.AuthToken == "" {
		return errorsx.New(errorsx.ReasonConfiguration, "missing twilio credentials")
	}
	if c.From == "" || len(c.To) == 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "twilio from/to required")
	}
	return nil
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// SMSNotifier texts every configured recipient on a detection.
type SMSNotifier struct {
	cfg     SMSConfig
	client  messageCreator
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewSMSNotifier(cfg SMSConfig) (*SMSNotifier, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newSMSNotifier(cfg, rest.Api), nil
}

func newSMSNotifier(cfg SMSConfig, client messageCreator) *SMSNotifier {
	return &SMSNotifier{
		cfg:     cfg.withDefaults(),
		client:  client,
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:  logging.NewComponentLogger(slog.Default(), "twilio_sms"),
	}
}

func (n *SMSNotifier) Name() string { return "twilio_sms" }

// Fire sends one message per recipient. It stops at the first rate limit.
func (n *SMSNotifier) Fire(ctx context.Context, ev detect.Event) error {
	body := n.render(ev)
	var errs []error
	for _, to := range n.cfg.To {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if !n.breaker.Allow() {
			errs = append(errs, errorsx.New(errorsx.ReasonActionRateLimit, "twilio circuit open for %s", n.breaker.Remaining().Round(time.Second)))
			break
		}
		params := &api.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(n.cfg.From)
		params.SetBody(body)
		resp, err := n.client.CreateMessage(params)
		if err != nil {
			err = classifyTwilioError(err)
			n.breaker.OnError(err)
			n.logger.Warn("sms_send_failed",
				slog.String("to", redact.Text(to)),
				slog.String("error", redact.Text(err.Error())))
			errs = append(errs, err)
			if errorsx.HasReason(err, errorsx.ReasonActionRateLimit) {
				break
			}
			continue
		}
		n.breaker.OnSuccess()
		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		n.logger.Info("sms_sent", slog.String("to", redact.Text(to)), slog.String("sid", sid), slog.String("event_id", ev.ID))
	}
	return errors.Join(errs...)
}

func (n *SMSNotifier) render(ev detect.Event) string {
	r := strings.NewReplacer(
		"{wake_word}", ev.WakeWord,
		"{backend}", ev.Backend.String(),
		"{time}", time.Now().Format(time.RFC3339),
	)
	return r.Replace(n.cfg.Body)
}

func classifyTwilioError(err error) error {
	var te *twilioclient.TwilioRestError
	if errors.As(err, &te) && te.Status == http.StatusTooManyRequests {
		return errorsx.Wrap(fmt.Errorf("twilio: %w", resilience.RateLimitError{Provider: "twilio", Message: te.Message}), errorsx.ReasonActionRateLimit)
	}
	return errorsx.Wrapf(err, errorsx.ReasonActionSend, "twilio create message")
}

var _ Action = (*SMSNotifier)(nil)
