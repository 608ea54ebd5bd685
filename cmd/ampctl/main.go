// Command ampctl talks to an amp backend from the shell.
//
// Usage:
//
//	ampctl --key KEY observe page-view '{"path":"/"}'
//	ampctl --key KEY decide hero '{"color":["red","blue"],"size":["s","m"]}'
//	ampctl --key KEY decide-cond hero purchase '{"mobile":{},"desktop":{}}' '["a","b"]'
//	ampctl agent --agents 'https://a.example=1,https://b.example=2' user-42
//	ampctl expand '{"color":["red","blue"]}'
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ambiyansyah-risyal/amp"
)

// CLI defines the command-line interface.
type CLI struct {
	Version    VersionCmd    `cmd:"" help:"Show version information."`
	Observe    ObserveCmd    `cmd:"" help:"Report an event."`
	Decide     DecideCmd     `cmd:"" help:"Ask for a decision among candidates."`
	DecideCond DecideCondCmd `cmd:"" name:"decide-cond" help:"Ask for one decision per context of a future event."`
	Agent      AgentCmd      `cmd:"" help:"Show which agent a user id is routed to."`
	Expand     ExpandCmd     `cmd:"" help:"Print the flattened candidate list."`

	Config string `short:"c" help:"Path to config file." type:"path"`
	// AMP_* variables are read by Config.ApplyEnv, not by kong, so that
	// both accept the same value formats.
	Key      string `help:"Project key (AMP_KEY)."`
	Domain   string `help:"Base URL of the backend (AMP_DOMAIN)."`
	APIPath  string `name:"api-path" help:"API path between base URL and key (AMP_API_PATH)."`
	Agents   string `help:"Agent table as url=weight pairs separated by commas (AMP_AGENTS)."`
	Timeout  string `help:"Per-request deadline, a Go duration or milliseconds (AMP_TIMEOUT)."`
	UserID   string `name:"user-id" help:"End user id (AMP_USER_ID)."`
	Session  string `help:"Session token to resume; the updated token is printed to stderr."`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`
	JSON     bool   `help:"Print results as JSON."`

	out io.Writer `kong:"-"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Fprintln(cli.out, amp.GetVersion())
	return nil
}

// ObserveCmd reports an event.
type ObserveCmd struct {
	Name       string `arg:"" help:"Event name."`
	Properties string `arg:"" optional:"" help:"Event properties as a JSON object."`
}

func (c *ObserveCmd) Run(cli *CLI) error {
	var props map[string]any
	if err := decodeArg("properties", c.Properties, &props); err != nil {
		return err
	}

	return cli.withSession(func(ctx context.Context, s *amp.Session) error {
		res, err := s.Observe(ctx, c.Name, props)
		if err != nil {
			return err
		}
		return cli.print(res, fmt.Sprintf("index=%d agent=%s acknowledged=%t", res.Index, res.Agent, res.Acknowledged))
	})
}

// DecideCmd asks for a decision.
type DecideCmd struct {
	Name       string `arg:"" help:"Decision name."`
	Candidates string `arg:"" help:"Candidates as a JSON array or an object of option lists."`
	Limit      int    `help:"Number of ranked candidates to return." default:"1"`
}

func (c *DecideCmd) Run(cli *CLI) error {
	candidates, err := parseCandidates(c.Candidates)
	if err != nil {
		return err
	}

	return cli.withSession(func(ctx context.Context, s *amp.Session) error {
		d, err := s.Decide(ctx, c.Name, candidates, amp.WithLimit(c.Limit))
		if err != nil && d == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		return cli.print(d, fmt.Sprintf("index=%d agent=%s fallback=%t values=%s", d.Index, d.Agent, d.Fallback, mustJSON(d.Values)))
	})
}

// DecideCondCmd asks for a conditional decision.
type DecideCondCmd struct {
	Name       string `arg:"" help:"Decision name."`
	Event      string `arg:"" help:"Name of the event the decision is conditioned on."`
	Contexts   string `arg:"" help:"Contexts as a JSON object keyed by label."`
	Candidates string `arg:"" help:"Candidates as a JSON array or an object of option lists."`
}

func (c *DecideCondCmd) Run(cli *CLI) error {
	candidates, err := parseCandidates(c.Candidates)
	if err != nil {
		return err
	}
	var contexts map[string]any
	if err := decodeArg("contexts", c.Contexts, &contexts); err != nil {
		return err
	}

	return cli.withSession(func(ctx context.Context, s *amp.Session) error {
		d, err := s.DecideCond(ctx, c.Name, candidates, c.Event, contexts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		return cli.print(d, fmt.Sprintf("index=%d agent=%s fallback=%t decisions=%s", d.Index, d.Agent, d.Fallback, mustJSON(d.Decisions)))
	})
}

// AgentCmd prints the agent a user id maps to.
type AgentCmd struct {
	UserID string `arg:"" help:"User id to route."`
}

func (c *AgentCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	weights := cfg.Agents
	if len(weights) == 0 {
		domain := cfg.Domain
		if domain == "" {
			domain = amp.DefaultDomain
		}
		weights = map[string]float64{domain: 1}
	}
	agent := amp.SelectAgent(c.UserID, weights)
	return cli.print(map[string]string{"userId": c.UserID, "agent": agent}, agent)
}

// ExpandCmd prints a flattened candidate space.
type ExpandCmd struct {
	Candidates string `arg:"" help:"Candidates as a JSON array or an object of option lists."`
}

func (c *ExpandCmd) Run(cli *CLI) error {
	candidates, err := parseCandidates(c.Candidates)
	if err != nil {
		return err
	}
	if n := candidates.Count(); n > amp.MaxCandidates {
		return fmt.Errorf("%d combinations: %w", n, amp.ErrTooManyCandidates)
	}
	all := amp.Expand(candidates).All
	if cli.JSON {
		return cli.print(all, "")
	}
	for i, c := range all {
		fmt.Fprintf(cli.out, "%d\t%s\n", i, mustJSON(c))
	}
	return nil
}

func main() {
	// .env files are optional; the process environment wins over them.
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", file, err)
			os.Exit(1)
		}
	}

	cli := CLI{out: os.Stdout}
	ctx := kong.Parse(&cli,
		kong.Name("ampctl"),
		kong.Description("Command-line client for the amp decision backend"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

// loadConfig merges the config file, the environment and the flags, in
// increasing priority.
func (cli *CLI) loadConfig() (*amp.Config, error) {
	cfg := &amp.Config{}
	if cli.Config != "" {
		loaded, err := amp.LoadConfig(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cli.Key != "" {
		cfg.Key = cli.Key
	}
	if cli.Domain != "" {
		cfg.Domain = cli.Domain
	}
	if cli.APIPath != "" {
		cfg.APIPath = cli.APIPath
	}
	if cli.UserID != "" {
		cfg.UserID = cli.UserID
	}
	if cli.Timeout != "" {
		timeout, err := amp.ParseDuration(cli.Timeout)
		if err != nil {
			return nil, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if cli.Agents != "" {
		agents, err := amp.ParseAgents(cli.Agents)
		if err != nil {
			return nil, err
		}
		cfg.Agents = agents
	}
	return cfg, nil
}

func (cli *CLI) logger() amp.Logger {
	level, err := zerolog.ParseLevel(cli.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return amp.NewConsoleLogger(os.Stderr, level)
}

func (cli *CLI) withSession(fn func(context.Context, *amp.Session) error) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	client := amp.New(append(cfg.Options(), amp.WithLogger(cli.logger()))...)

	var session *amp.Session
	if cli.Session != "" {
		session, err = client.ResumeSession(cli.Session)
	} else {
		session, err = client.NewSession()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, session); err != nil {
		return err
	}

	token, err := session.Token()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "session: %s\n", token)
	return nil
}

func (cli *CLI) print(v any, text string) error {
	if !cli.JSON {
		fmt.Fprintln(cli.out, text)
		return nil
	}
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decodeArg(name, raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("invalid %s JSON: %w", name, err)
	}
	return nil
}

// parseCandidates accepts a JSON array (explicit list) or a JSON object
// (option lists to combine).
func parseCandidates(raw string) (amp.Candidates, error) {
	var v any
	if err := decodeArg("candidates", raw, &v); err != nil {
		return nil, err
	}
	switch c := v.(type) {
	case []any:
		return amp.CandidateList(c), nil
	case map[string]any:
		return amp.OptionsFromMap(c), nil
	default:
		return nil, fmt.Errorf("candidates must be a JSON array or object")
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
