package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/waldo-cli/internal/engine"
	"github.com/xkilldash9x/waldo-cli/internal/enginetest"
)

func TestDialogDefaultAutoAccepts(t *testing.T) {
	fake := &enginetest.FakeSession{}
	newTestPage(t, fake)

	require.True(t, fake.FireDialog(engine.DialogRequest{Kind: engine.DialogAlert, Message: "hi"}),
		"the mediator must be armed as soon as the page exists")

	res := fake.Resolutions()
	require.Len(t, res, 1)
	assert.True(t, res[0].Accept)
	assert.Empty(t, res[0].PromptText)
}

func TestDialogCustomHandler(t *testing.T) {
	fake := &enginetest.FakeSession{}
	page := newTestPage(t, fake)

	var got engine.DialogRequest
	page.SetDialogHandler(func(req engine.DialogRequest) engine.DialogDecision {
		got = req
		return engine.DialogDecision{Accept: false}
	})

	fake.FireDialog(engine.DialogRequest{
		Kind:          engine.DialogConfirm,
		Message:       "Delete everything?",
		DefaultPrompt: "",
	})

	assert.Equal(t, engine.DialogConfirm, got.Kind)
	assert.Equal(t, "Delete everything?", got.Message)

	res := fake.Resolutions()
	require.Len(t, res, 1)
	assert.False(t, res[0].Accept, "the handler's verdict decides the dialog")
}

func TestDialogPromptText(t *testing.T) {
	fake := &enginetest.FakeSession{}
	page := newTestPage(t, fake)

	page.SetDialogHandler(func(req engine.DialogRequest) engine.DialogDecision {
		return engine.DialogDecision{Accept: true, PromptText: "Bruce"}
	})

	fake.FireDialog(engine.DialogRequest{
		Kind:          engine.DialogPrompt,
		Message:       "Your name?",
		DefaultPrompt: "Anonymous",
	})

	res := fake.Resolutions()
	require.Len(t, res, 1)
	assert.True(t, res[0].Accept)
	assert.Equal(t, "Bruce", res[0].PromptText)
}

func TestDialogHandlerSwapWithoutRearming(t *testing.T) {
	fake := &enginetest.FakeSession{}
	page := newTestPage(t, fake)

	page.SetDialogHandler(func(engine.DialogRequest) engine.DialogDecision {
		return engine.DialogDecision{Accept: false}
	})
	fake.FireDialog(engine.DialogRequest{Kind: engine.DialogConfirm})

	// Back to the default.
	page.SetDialogHandler(nil)
	fake.FireDialog(engine.DialogRequest{Kind: engine.DialogConfirm})

	res := fake.Resolutions()
	require.Len(t, res, 2)
	assert.False(t, res[0].Accept)
	assert.True(t, res[1].Accept, "a nil handler restores auto-accept")

	assert.Equal(t, 1, fake.ArmCount(), "swapping handlers must not re-subscribe the protocol callback")
}

func TestDialogSequence(t *testing.T) {
	fake := &enginetest.FakeSession{}
	page := newTestPage(t, fake)

	answers := []bool{true, false, true}
	i := 0
	page.SetDialogHandler(func(engine.DialogRequest) engine.DialogDecision {
		d := engine.DialogDecision{Accept: answers[i]}
		i++
		return d
	})

	for range answers {
		fake.FireDialog(engine.DialogRequest{Kind: engine.DialogConfirm, Message: "again?"})
	}

	res := fake.Resolutions()
	require.Len(t, res, len(answers))
	for j, want := range answers {
		assert.Equal(t, want, res[j].Accept, "dialog %d", j)
	}
}
