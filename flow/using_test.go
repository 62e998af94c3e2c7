package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeConn struct {
	open bool
}

func usingBody(t *testing.T, fail error) *Workflow {
	t.Helper()
	wf, err := New("with-conn").
		Step("query", func(_ context.Context, c *Context) (map[string]any, error) {
			if fail != nil {
				return nil, fail
			}
			conn := c.Value("conn").(*fakeConn)
			if !conn.open {
				return nil, errors.New("connection not open")
			}
			return map[string]any{"rows": 3}, nil
		}).
		Build()
	if err != nil {
		t.Fatalf("build body: %v", err)
	}
	return wf
}

func TestUsing_AcquireBodyRelease(t *testing.T) {
	conn := &fakeConn{}
	released := false

	wf, _ := New("scoped").
		Using("db", Resource{
			Acquire: func(context.Context, *Context) (any, error) {
				conn.open = true
				return conn, nil
			},
			Release: func(_ context.Context, _ *Context, res any, bodyErr error) error {
				released = true
				res.(*fakeConn).open = false
				return nil
			},
			Body: usingBody(t, nil),
			As:   "conn",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !released {
		t.Error("release did not run")
	}
	if conn.open {
		t.Error("resource still open after release")
	}
	if out.Context.Value("rows") != 3 {
		t.Errorf("body result not merged: %v", out.Context.Map())
	}
	if out.Context.Has("conn") {
		t.Error("resource key leaked into parent context")
	}
}

func TestUsing_AcquireFailure(t *testing.T) {
	bodyRan := false
	body, _ := New("never").
		Step("mark", func(context.Context, *Context) (map[string]any, error) {
			bodyRan = true
			return nil, nil
		}).
		Build()

	wf, _ := New("scoped").
		Using("db", Resource{
			Acquire: func(context.Context, *Context) (any, error) {
				return nil, errors.New("pool exhausted")
			},
			Release: func(context.Context, *Context, any, error) error {
				t.Error("release must not run when acquire failed")
				return nil
			},
			Body: body,
			As:   "conn",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Err.Tag != TagAcquireFailed {
		t.Errorf("tag = %s, want %s", out.Err.Tag, TagAcquireFailed)
	}
	if bodyRan {
		t.Error("body ran despite failed acquire")
	}
}

func TestUsing_BodyErrorWinsOverReleaseError(t *testing.T) {
	released := false
	wf, _ := New("scoped").
		Using("db", Resource{
			Acquire: func(context.Context, *Context) (any, error) { return &fakeConn{open: true}, nil },
			Release: func(context.Context, *Context, any, error) error {
				released = true
				return errors.New("release also broke")
			},
			Body: usingBody(t, errors.New("body broke")),
			As:   "conn",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !released {
		t.Error("release must run even when the body failed")
	}
	if out.Err.Tag == TagReleaseFailed {
		t.Error("body error must win over release error")
	}
	if !strings.Contains(err.Error(), "body broke") {
		t.Errorf("expected body failure surfaced, got %v", err)
	}
}

func TestUsing_ReleaseErrorSurfacesAfterSuccessfulBody(t *testing.T) {
	wf, _ := New("scoped").
		Using("db", Resource{
			Acquire: func(context.Context, *Context) (any, error) { return &fakeConn{open: true}, nil },
			Release: func(context.Context, *Context, any, error) error {
				return errors.New("close failed")
			},
			Body: usingBody(t, nil),
			As:   "conn",
		}).
		Build()

	out, err := Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Err.Tag != TagReleaseFailed {
		t.Errorf("tag = %s, want %s", out.Err.Tag, TagReleaseFailed)
	}
}

func TestUsing_ReleaseSeesBodyOutcome(t *testing.T) {
	var sawErr error
	wf, _ := New("scoped").
		Using("db", Resource{
			Acquire: func(context.Context, *Context) (any, error) { return &fakeConn{open: true}, nil },
			Release: func(_ context.Context, _ *Context, _ any, bodyErr error) error {
				sawErr = bodyErr
				return nil
			},
			Body: usingBody(t, errors.New("query exploded")),
			As:   "conn",
		}).
		Build()

	_, _ = Run(context.Background(), wf, nil)
	if sawErr == nil || !strings.Contains(sawErr.Error(), "query exploded") {
		t.Errorf("release saw outcome %v, want the body failure", sawErr)
	}
}
