package cmd

import (
	"context"
	"strings"
	"sync"
)

// FakeResponse is the canned result for a matched command.
type FakeResponse struct {
	Stdout []byte
	Err    error
}

// Call records a single command invocation for verification.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call the way verbose logging would.
func (c Call) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

type fakeRule struct {
	match     func(dir, name string, args []string) bool
	responses []FakeResponse
	next      int
}

// take returns the next response in the sequence; the last one is sticky.
func (r *fakeRule) take() FakeResponse {
	resp := r.responses[r.next]
	if r.next < len(r.responses)-1 {
		r.next++
	}
	return resp
}

// FakeRunner returns canned responses for commands and records every
// invocation. Rules are matched in registration order; unmatched commands
// succeed with empty output.
type FakeRunner struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []Call
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On adds a rule matching commands whose name and leading args equal prefix.
func (f *FakeRunner) On(name string, prefix []string, resp FakeResponse) {
	f.OnSeq(name, prefix, resp)
}

// OnSeq is like On but cycles through responses across successive calls,
// sticking on the last one. Useful when a read changes after a mutation.
func (f *FakeRunner) OnSeq(name string, prefix []string, resps ...FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{
		match: func(_, n string, args []string) bool {
			if n != name || len(args) < len(prefix) {
				return false
			}
			for i, p := range prefix {
				if args[i] != p {
					return false
				}
			}
			return true
		},
		responses: resps,
	})
}

// OnExact adds a rule matching a command with exactly these args.
func (f *FakeRunner) OnExact(name string, args []string, resp FakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{
		match: func(_, n string, a []string) bool {
			if n != name || len(a) != len(args) {
				return false
			}
			for i, arg := range args {
				if a[i] != arg {
					return false
				}
			}
			return true
		},
		responses: []FakeResponse{resp},
	})
}

// Calls returns a copy of all recorded invocations.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching returns recorded invocations whose rendered form contains substr.
func (f *FakeRunner) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.String(), substr) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeRunner) lookup(dir, name string, args []string) FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Dir: dir, Name: name, Args: args})
	for i := range f.rules {
		if f.rules[i].match(dir, name, args) {
			return f.rules[i].take()
		}
	}
	return FakeResponse{}
}

func (f *FakeRunner) Run(_ context.Context, dir, name string, args ...string) error {
	return f.lookup(dir, name, args).Err
}

func (f *FakeRunner) Output(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	resp := f.lookup(dir, name, args)
	return resp.Stdout, resp.Err
}

var _ Runner = (*FakeRunner)(nil)
var _ Runner = ExecRunner{}
