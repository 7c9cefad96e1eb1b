package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/haivivi/playground/pkg/genx"
	"github.com/haivivi/playground/pkg/registry"
	"github.com/haivivi/playground/pkg/session"
	"github.com/haivivi/playground/pkg/storage"
)

// echoGenerator replies with the last user text and counts the messages it
// was given.
type echoGenerator struct {
	mu   sync.Mutex
	seen []int
	fail error
}

func (g *echoGenerator) Complete(_ context.Context, mctx genx.ModelContext) (*genx.Completion, error) {
	msgs := slices.Collect(mctx.Messages())
	g.mu.Lock()
	g.seen = append(g.seen, len(msgs))
	fail := g.fail
	g.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	last := msgs[len(msgs)-1].Payload.(genx.Contents).String()
	return &genx.Completion{
		Text:  "echo: " + last,
		Usage: genx.Usage{PromptTokenCount: 3, GeneratedTokenCount: 2},
	}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(t *testing.T, gen genx.Generator) *Coordinator {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := session.New(context.Background(), session.Config{}, session.Options{Files: local, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New(context.Background(), registry.Options{
		Factory: func(registry.ModelSettings) (genx.Generator, error) { return gen, nil },
		Logger:  quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &Coordinator{Store: store, Registry: reg, Logger: quietLogger()}
}

func TestRunTurnRoundTrip(t *testing.T) {
	gen := &echoGenerator{}
	c := newCoordinator(t, gen)
	ctx := context.Background()

	res, err := c.RunTurn(ctx, "alice", "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	want := session.Message{Role: session.RoleAssistant, Content: "echo: hi"}
	if res.Reply.Role != want.Role || res.Reply.Content != want.Content {
		t.Errorf("reply = %+v", res.Reply)
	}
	if res.Metrics.Usage.Total() != 5 {
		t.Errorf("tokens = %d", res.Metrics.Usage.Total())
	}

	h, err := c.History(ctx, "alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 || h[0].Role != session.RoleUser || h[0].Content != "hi" || h[1].Content != "echo: hi" {
		t.Errorf("history = %+v", h)
	}

	if _, err := c.RunTurn(ctx, "alice", "again"); err != nil {
		t.Fatal(err)
	}
	// Second turn sees the two stored messages plus the new prompt.
	if !slices.Equal(gen.seen, []int{1, 3}) {
		t.Errorf("messages per call = %v", gen.seen)
	}

	bob, err := c.History(ctx, "bob")
	if err != nil || len(bob) != 0 {
		t.Errorf("bob history = %v, %v", bob, err)
	}
}

func TestRunTurnAgentFailureSavesNothing(t *testing.T) {
	boom := errors.New("upstream 503")
	c := newCoordinator(t, &echoGenerator{fail: boom})
	ctx := context.Background()

	_, err := c.RunTurn(ctx, "alice", "hi")
	if !errors.Is(err, ErrAgentExecutionFailed) {
		t.Fatalf("err = %v, want ErrAgentExecutionFailed", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not wrapped: %v", err)
	}
	var ae *AgentExecutionError
	if !errors.As(err, &ae) || ae.UserID != "alice" {
		t.Errorf("err = %#v", err)
	}
	h, _ := c.History(ctx, "alice")
	if len(h) != 0 {
		t.Errorf("history saved after failure: %+v", h)
	}
}

func TestRunTurnInvalidUser(t *testing.T) {
	gen := &echoGenerator{}
	c := newCoordinator(t, gen)
	for _, id := range []string{"", "../etc/passwd", "a b"} {
		if _, err := c.RunTurn(context.Background(), id, "hi"); !errors.Is(err, session.ErrInvalidIdentifier) {
			t.Errorf("%q: err = %v", id, err)
		}
	}
	if len(gen.seen) != 0 {
		t.Error("generator called for invalid user")
	}
}

type failingSave struct {
	session.Store
}

func (failingSave) Save(context.Context, string, session.History) error {
	return errors.New("disk full")
}

func TestRunTurnSaveErrorStillReplies(t *testing.T) {
	c := newCoordinator(t, &echoGenerator{})
	c.Store = failingSave{c.Store}
	var failed []string
	c.OnSaveError = func(user string, err error) { failed = append(failed, user) }

	res, err := c.RunTurn(context.Background(), "alice", "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Reply.Content != "echo: hi" {
		t.Errorf("reply = %+v", res.Reply)
	}
	if !slices.Equal(failed, []string{"alice"}) {
		t.Errorf("OnSaveError calls = %v", failed)
	}
}

func TestRunTurnSerializesPerUser(t *testing.T) {
	c := newCoordinator(t, &echoGenerator{})
	ctx := context.Background()
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.RunTurn(ctx, "carol", fmt.Sprintf("msg %d", i)); err != nil {
				t.Error(err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.RunTurn(ctx, fmt.Sprintf("user%d", i), "hi"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	h, err := c.History(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 2*n {
		t.Errorf("carol history has %d messages, want %d", len(h), 2*n)
	}
	if len(c.locks.locks) != 0 {
		t.Errorf("lock map not cleaned up: %d entries", len(c.locks.locks))
	}
}
