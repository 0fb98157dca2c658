package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/voicetrigger/pkg/actions"
	"github.com/harunnryd/voicetrigger/pkg/detect"
	"github.com/harunnryd/voicetrigger/pkg/voicetrigger"
)

// Sends one notification through the configured Twilio action, as if the
// wake word had just been detected.
func main() {
	configPath := flag.String("config", "", "")
	to := flag.String("to", "", "override recipient")
	flag.Parse()

	cfg, err := voicetrigger.LoadConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	sms := cfg.Actions.Twilio.SMSConfig
	if *to != "" {
		sms.To = []string{*to}
	}
	notifier, err := actions.NewSMSNotifier(sms)
	if err != nil {
		fmt.Println("twilio error:", err)
		os.Exit(1)
	}
	dc := cfg.DetectorConfig()
	ev := detect.Event{
		ID:       uuid.NewString(),
		At:       time.Now(),
		Backend:  dc.Kind,
		WakeWord: dc.WakeWord,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := notifier.Fire(ctx, ev); err != nil {
		fmt.Println("send failed:", err)
		os.Exit(1)
	}
	fmt.Println("sent", ev.ID, "to", len(sms.To), "recipient(s)")
}
