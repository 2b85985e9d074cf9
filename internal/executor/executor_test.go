package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autotyped/internal/sequence"
)

type fakeTypist struct {
	calls   []string
	failOn  string
	failErr error
}

func (f *fakeTypist) TypeText(_ context.Context, text string, interKey time.Duration) error {
	call := fmt.Sprintf("type:%s@%s", text, interKey)
	f.calls = append(f.calls, call)
	if f.failOn != "" && text == f.failOn {
		return f.failErr
	}
	return nil
}

func (f *fakeTypist) PressKey(_ context.Context, key string, mods sequence.Modifier) error {
	if mods != 0 {
		key = mods.String() + "+" + key
	}
	f.calls = append(f.calls, "key:"+key)
	if f.failOn != "" && key == f.failOn {
		return f.failErr
	}
	return nil
}

func (f *fakeTypist) Paste(context.Context) error {
	f.calls = append(f.calls, "paste")
	return nil
}

type fakeClip struct {
	content string
	writes  []string
	readErr error
}

func (f *fakeClip) Read() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.content, nil
}

func (f *fakeClip) Write(text string) error {
	f.content = text
	f.writes = append(f.writes, text)
	return nil
}

func newTestExecutor(t *fakeTypist, c *fakeClip) (*Executor, *[]time.Duration) {
	ex := New(t, c, DefaultConfig())
	var slept []time.Duration
	ex.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return ex, &slept
}

func mustParse(t *testing.T, tmpl string) sequence.Op {
	t.Helper()
	root, err := sequence.Parse(tmpl)
	require.NoError(t, err)
	return root
}

func TestExecuteResolvedLoginSequence(t *testing.T) {
	root := sequence.Group(0,
		sequence.Text("alice", 0),
		sequence.Command("TAB", "", 0),
		sequence.Text("secret", 0),
		sequence.Command("ENTER", "", 0),
	)
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"type:alice@0s", "key:tab", "type:secret@0s", "key:enter"}, ty.calls)
}

func TestExecuteKeyRepeat(t *testing.T) {
	root := mustParse(t, "{TAB 3}")
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"key:tab", "key:tab", "key:tab"}, ty.calls)
}

func TestExecuteOneShotDelay(t *testing.T) {
	root := mustParse(t, "a{DELAY 150}b")
	ty := &fakeTypist{}
	ex, slept := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []time.Duration{150 * time.Millisecond}, *slept)
	require.Equal(t, []string{"type:a@0s", "type:b@0s"}, ty.calls)
}

func TestExecuteSetInterKeyDelay(t *testing.T) {
	root := mustParse(t, "fast{DELAY=25}slow")
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"type:fast@0s", "type:slow@25ms"}, ty.calls)
}

func TestExecuteClearField(t *testing.T) {
	root := mustParse(t, "{CLEARFIELD}")
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"key:home", "key:shift+end", "key:delete"}, ty.calls)
}

func TestExecuteClipboardRoundTrip(t *testing.T) {
	root := sequence.Group(0,
		sequence.Command("CLIPSET", "chunk1", 0),
		sequence.Command("PASTE", "", 0),
		sequence.Command("CLIPSET", "chunk2", 0),
		sequence.Command("PASTE", "", 0),
	)
	ty := &fakeTypist{}
	clip := &fakeClip{content: "user had this copied"}
	ex, slept := newTestExecutor(ty, clip)
	require.NoError(t, ex.Execute(context.Background(), &root))

	// Chunks written in order, then the user's clipboard put back.
	require.Equal(t, []string{"chunk1", "chunk2", "user had this copied"}, clip.writes)
	require.Equal(t, "user had this copied", clip.content)
	require.Equal(t, []string{"paste", "paste"}, ty.calls)
	// Each paste is followed by the settle pause.
	require.Len(t, *slept, 2)
}

func TestExecuteClipboardRestoredOnFailure(t *testing.T) {
	root := sequence.Group(0,
		sequence.Command("CLIPSET", "chunk", 0),
		sequence.Command("PASTE", "", 0),
		sequence.Text("boom", 0),
	)
	ty := &fakeTypist{failOn: "boom", failErr: errors.New("injection rejected")}
	clip := &fakeClip{content: "original"}
	ex, _ := newTestExecutor(ty, clip)

	err := ex.Execute(context.Background(), &root)
	require.Error(t, err)
	require.Equal(t, "original", clip.content, "clipboard must be restored even when the run fails")
}

func TestExecuteUnreadableClipboardRestoresEmpty(t *testing.T) {
	root := sequence.Group(0, sequence.Command("CLIPSET", "chunk", 0))
	clip := &fakeClip{readErr: errors.New("no selection owner")}
	ex, _ := newTestExecutor(&fakeTypist{}, clip)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, "", clip.content)
}

func TestExecuteChordText(t *testing.T) {
	root := mustParse(t, "^a")
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"key:ctrl+a"}, ty.calls)
}

func TestExecuteGroupModifiersMerge(t *testing.T) {
	root := mustParse(t, "+(ab{TAB})")
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)
	require.NoError(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"key:shift+a", "key:shift+b", "key:shift+tab"}, ty.calls)
}

func TestExecuteFailureCarriesRedactedOp(t *testing.T) {
	root := sequence.Group(0, sequence.Text("hunter2", 0))
	ty := &fakeTypist{failOn: "hunter2", failErr: errors.New("target gone")}
	ex, _ := newTestExecutor(ty, nil)

	err := ex.Execute(context.Background(), &root)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	require.NotContains(t, runErr.Error(), "hunter2")
	require.Contains(t, runErr.Error(), "target gone")
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	root := sequence.Group(0,
		sequence.Text("a", 0),
		sequence.Text("bad", 0),
		sequence.Text("never", 0),
	)
	ty := &fakeTypist{failOn: "bad", failErr: errors.New("nope")}
	ex, _ := newTestExecutor(ty, nil)

	require.Error(t, ex.Execute(context.Background(), &root))
	require.Equal(t, []string{"type:a@0s", "type:bad@0s"}, ty.calls)
}

func TestExecuteUnknownCommand(t *testing.T) {
	root := sequence.Group(0, sequence.Command("FROBNICATE", "", 0))
	ex, _ := newTestExecutor(&fakeTypist{}, nil)

	err := ex.Execute(context.Background(), &root)
	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	require.Contains(t, runErr.Error(), "FROBNICATE")
}

func TestExecuteVKEYUnsupported(t *testing.T) {
	root := mustParse(t, "{VKEY 65}")
	ex, _ := newTestExecutor(&fakeTypist{}, nil)
	require.Error(t, ex.Execute(context.Background(), &root))
}

func TestExecuteCanceledContext(t *testing.T) {
	root := mustParse(t, "abc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ty := &fakeTypist{}
	ex, _ := newTestExecutor(ty, nil)

	err := ex.Execute(ctx, &root)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ty.calls)
}
