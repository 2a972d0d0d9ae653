package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcelliott/wampc"
)

// Version information set at build time.
var version = "dev"

type globalFlags struct {
	url           string
	realm         string
	serialization string
	timeout       time.Duration
	ticket        string
	secret        string
	debug         bool
}

func main() {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "wampc",
		Short: "Talk to a WAMP router from the command line",
		Long: `wampc joins a realm on a WAMP v2 router and publishes, subscribes or
calls procedures.

Defaults come from WAMP_URL, WAMP_REALM, WAMP_SERIALIZATION and the other
WAMP_* environment variables; flags override them.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.debug {
				wampc.Debug()
			}
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&g.url, "url", "u", "", "router URL (ws, wss, tcp, rs, rss or unix)")
	f.StringVarP(&g.realm, "realm", "r", "", "realm to join")
	f.StringVarP(&g.serialization, "serialization", "s", "", "json, msgpack or cbor")
	f.DurationVar(&g.timeout, "timeout", 0, "how long to wait for each router reply")
	f.StringVar(&g.ticket, "ticket", "", "answer a ticket challenge with this ticket")
	f.StringVar(&g.secret, "secret", "", "answer a wampcra challenge with this secret")
	f.BoolVar(&g.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		subscribeCmd(g),
		publishCmd(g),
		callCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// connect builds a client from the environment and the global flags and
// joins the realm.
func (g *globalFlags) connect(ctx context.Context) (*wampc.Session, error) {
	cfg, err := wampc.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if g.url != "" {
		cfg.URL = g.url
	}
	if g.realm != "" {
		cfg.Realm = g.realm
	}
	if g.serialization != "" {
		cfg.Serialization = g.serialization
	}
	if g.timeout > 0 {
		cfg.ReceiveTimeout = g.timeout
	}

	opts := []wampc.SessionOption{wampc.WithRoles(cliRoles())}
	methods := map[string]wampc.AuthFunc{}
	if g.ticket != "" {
		methods[wampc.AuthTicket] = wampc.TicketAuth(g.ticket)
	}
	if g.secret != "" {
		methods[wampc.AuthWampCRA] = wampc.CRAuth(g.secret)
	}
	if len(methods) > 0 {
		if cfg.AuthID == "" {
			return nil, fmt.Errorf("authentication needs WAMP_AUTHID")
		}
		opts = append(opts, wampc.WithAuth(cfg.AuthID, methods))
	}

	client, err := wampc.NewClientFromConfig(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx)
}

// cliRoles declares the optional features the commands can ask for.
func cliRoles() wampc.Roles {
	roles := wampc.NewRoles(wampc.PUBLISHER | wampc.SUBSCRIBER | wampc.CALLER)
	roles.Subscriber.Features.PatternBasedSubscription = true
	roles.Caller.Features.CallTimeout = true
	return roles
}

// interrupted returns a context that is cancelled on SIGINT.
func interrupted() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// parseArgs reads each positional argument as JSON, falling back to a plain
// string when it is not valid JSON.
func parseArgs(raw []string) []interface{} {
	if len(raw) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(raw))
	for _, r := range raw {
		args = append(args, parseValue(r))
	}
	return args
}

// parseKwargs reads key=value pairs, the value parsed like a positional
// argument.
func parseKwargs(raw []string) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kwargs := make(map[string]interface{}, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad keyword argument %q: want key=value", kv)
		}
		kwargs[k] = parseValue(v)
	}
	return kwargs, nil
}

func parseValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// printPayload writes args and kwargs as one line of JSON.
func printPayload(prefix string, args []interface{}, kwargs map[string]interface{}) {
	out := map[string]interface{}{}
	if len(args) > 0 {
		out["args"] = args
	}
	if len(kwargs) > 0 {
		out["kwargs"] = kwargs
	}
	b, err := json.Marshal(out)
	if err != nil {
		fmt.Printf("%s %v %v\n", prefix, args, kwargs)
		return
	}
	fmt.Printf("%s %s\n", prefix, b)
}
