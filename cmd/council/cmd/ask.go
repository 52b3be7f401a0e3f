package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/llm-council/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/llm-council/internal/catalog"
	"github.com/hugo-lorenzo-mato/llm-council/internal/clip"
	"github.com/hugo-lorenzo-mato/llm-council/internal/config"
	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
	"github.com/hugo-lorenzo-mato/llm-council/internal/fsutil"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run one deliberation and print the final answer",
	Long: `Run one deliberation in-process and print the chairman's answer.

Agents are given as name=model, or just model. Without --agent the
recommended opinion, reviewer and expert models are used.

Examples:
  council ask "What is a monad?"
  council ask --agent Alice=llama3.2:1b --agent Bob=gemma2:2b "Explain RAFT"
  council ask --query-file q.md --protocol batched --output session.json`,
	RunE: runAsk,
}

var (
	askAgents    []string
	askChairman  string
	askProtocol  string
	askQueryFile string
	askOutput    string
	askWorkerURL string
	askJSON      bool
	askCopy      bool
	askTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringArrayVarP(&askAgents, "agent", "a", nil, "agent as name=model or model (repeatable)")
	askCmd.Flags().StringVar(&askChairman, "chairman", "", "chairman model (default from config)")
	askCmd.Flags().StringVar(&askProtocol, "protocol", "", "review protocol (pairwise, batched)")
	askCmd.Flags().StringVarP(&askQueryFile, "query-file", "f", "", "read the question from a file")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "write the full session as JSON to this file")
	askCmd.Flags().StringVar(&askWorkerURL, "worker-url", "", "forward generations to this worker instead of local Ollama")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the session as JSON")
	askCmd.Flags().BoolVar(&askCopy, "copy", false, "copy the final answer to the clipboard")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 0, "stop waiting after this long and print the partial session (0 means no limit)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args, askQueryFile)
	if err != nil {
		return err
	}
	specs, err := parseAgents(askAgents)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		specs = defaultAgents(catalog.Recommended())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// One-shot runs act as a master; an empty worker URL keeps generation local.
	cfg.Server.Role = config.RoleMaster
	cfg.Worker.URL = askWorkerURL

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if askTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, askTimeout,
			fmt.Errorf("timed out after %s", askTimeout))
		defer cancel()
	}

	bus := events.New(32)
	defer bus.Close()
	progress := bus.Subscribe()
	view := watchProgress(cmd.ErrOrStderr(), progress, !askJSON && !noColor && isTTY(cmd.ErrOrStderr()))

	// Log lines go through the progress view so they never interleave with it.
	logger := newLogger(cfg, view.log)
	local := council.NewLocalGateway(cfg)
	store := state.NewMemoryStore()

	orch, err := council.NewFromConfig(cfg, store, council.GatewaysFor(cfg, local),
		council.WithEventPublisher(bus),
		council.WithLogger(logger),
	)
	if err != nil {
		bus.Unsubscribe(progress)
		view.wait()
		return err
	}

	sess, err := orch.Start(ctx, council.QueryRequest{
		Query:         query,
		Agents:        specs,
		Protocol:      core.ReviewProtocol(strings.ToLower(askProtocol)),
		ChairmanModel: askChairman,
	})
	if err != nil {
		bus.Unsubscribe(progress)
		view.wait()
		return err
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		orch.Wait()
	}()
	var interrupted error
	select {
	case <-finished:
	case <-ctx.Done():
		interrupted = context.Cause(ctx)
		if errors.Is(interrupted, context.Canceled) {
			interrupted = errors.New("interrupted")
		}
	}
	bus.Unsubscribe(progress)
	view.wait()

	// The session keeps running in the background after an interrupt; report
	// what it had reached.
	if sess, err = store.Get(context.Background(), sess.ID); err != nil {
		return err
	}
	if interrupted == nil && !sess.Stage.IsTerminal() {
		return fmt.Errorf("session %s stopped in stage %s", sess.ID, sess.Stage)
	}

	if askOutput != "" {
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
		if err := fsutil.WriteFileAtomic(askOutput, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", askOutput, err)
		}
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sess); err != nil {
			return err
		}
	} else if err := renderSession(out, sess, renderOptions{Color: !noColor, Width: 100}); err != nil {
		return err
	}

	if interrupted != nil && !sess.Stage.IsTerminal() {
		return fmt.Errorf("deliberation interrupted during %s: %w", sess.Stage, interrupted)
	}
	if sess.Stage == core.StageError {
		return fmt.Errorf("deliberation failed: %s", sess.Error)
	}
	if askCopy && sess.FinalAnswer != nil {
		copyAnswer(cmd.ErrOrStderr(), clip.New(), sess.FinalAnswer.Content)
	}
	return nil
}

func copyAnswer(w io.Writer, c *clip.Copier, answer string) {
	res, err := c.Copy(answer)
	switch {
	case err != nil:
		fmt.Fprintln(w, "could not copy the answer:", err)
	case res.Method == clip.MethodFile:
		fmt.Fprintln(w, "no clipboard available, answer saved to", res.FilePath)
	default:
		fmt.Fprintf(w, "answer copied (%s)\n", res.Method)
	}
}

// readQuery takes the question from the arguments or from file.
func readQuery(args []string, file string) (string, error) {
	if file != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("give the question as an argument or with --query-file, not both")
		}
		data, err := fsutil.ReadFileScoped(file)
		if err != nil {
			return "", fmt.Errorf("reading query file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", fmt.Errorf("a question is required")
	}
	return q, nil
}

// parseAgents reads name=model or bare model values.
func parseAgents(values []string) ([]core.AgentSpec, error) {
	specs := make([]core.AgentSpec, 0, len(values))
	for _, v := range values {
		name, model, found := strings.Cut(v, "=")
		if !found {
			name, model = "", name
		}
		name, model = strings.TrimSpace(name), strings.TrimSpace(model)
		if model == "" {
			return nil, fmt.Errorf("agent %q has no model", v)
		}
		specs = append(specs, core.AgentSpec{Name: name, Model: model})
	}
	return specs, nil
}

// defaultAgents picks one agent per deliberating role of the catalog.
func defaultAgents(models []catalog.Model) []core.AgentSpec {
	var specs []core.AgentSpec
	for _, role := range []catalog.Role{catalog.RoleOpinions, catalog.RoleReviewer, catalog.RoleExpert} {
		if m, ok := catalog.ForRole(models, role); ok {
			specs = append(specs, core.AgentSpec{Name: m.DisplayName, Model: m.Name})
		}
	}
	return specs
}
