// Package voicelane implements the realtime session orchestrator behind a
// configurable conversational voice agent.
//
// The orchestrator exchanges an agent configuration (instructions, voice,
// webhook-backed tools) for a short-lived credential, negotiates a
// low-latency audio transport, consumes the protocol event stream from the
// remote conversational model, and bridges model-initiated tool calls to
// operator-configured webhooks. The meeting-embedded variant is supervised by
// the meetbot subpackage, which launches and polls an externally hosted bot.
//
// A session moves through a fixed set of states:
//
//	Idle → RequestingCredential → AcquiringMicrophone → Negotiating →
//	Connected{Listening, Thinking, Speaking, AwaitingToolResult} →
//	Disconnected | Failed
//
// The Connected sub-states reflect turn-taking and drive status display only;
// they never gate event processing.
//
// Two transport connectors share the same session machinery: webrtc.Connector
// runs a local peer connection with a data channel, and WSConnector speaks
// the same protocol over a WebSocket for server-side (headless) sessions.
//
// Basic usage:
//
//	broker := &voicelane.Broker{Endpoint: sessionsURL, Secret: secret, Model: model}
//	orc := voicelane.NewOrchestrator(voicelane.OrchestratorConfig{
//		Broker:    broker,
//		Connector: connector,
//		OnTranscript: func(e voicelane.TranscriptEntry) {
//			fmt.Printf("%s: %s\n", e.Role, e.Text)
//		},
//	})
//	if err := orc.Start(ctx, cfg); err != nil {
//		log.Fatal(err)
//	}
//	defer orc.Cleanup()
//
// Every failure resolves to a state change followed by an idempotent Cleanup;
// nothing in this package terminates the hosting process.
package voicelane
