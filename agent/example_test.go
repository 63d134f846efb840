package agent_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/agentauth/agent"
	"github.com/jonwraymond/agentauth/exchange"
	"github.com/jonwraymond/agentauth/tokentest"
)

func ExampleAgent_Token() {
	ts := tokentest.NewServer(tokentest.Config{})
	defer ts.Close()

	material := tokentest.NewAgent("agent://support-bot")
	ts.RegisterAgent(material, "tickets.read")

	client, _ := exchange.NewClient(exchange.ClientConfig{Endpoint: ts.TokenURL(), HTTPClient: ts.Client()})
	a, _ := agent.New(agent.Config{Key: material, TokenService: client})

	ctx := context.Background()
	first, _ := a.Token(ctx, "https://tools.local/tickets", "tickets.read")
	second, _ := a.Token(ctx, "https://tools.local/tickets", "tickets.read")

	fmt.Println(first.Subject, first.Scopes)
	fmt.Println("reused:", first.Raw == second.Raw, "exchanges:", len(ts.Exchanges()))
	// Output:
	// agent://support-bot [tickets.read]
	// reused: true exchanges: 1
}
