package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qvvonk/smart-replays/internal/domain"
)

func TestSignalTriggerSource_Dispatch(t *testing.T) {
	secondary := domain.ModeMostRecordedProcess
	s := NewSignalTriggerSource(HotkeyModes{Secondary: &secondary})
	defer s.Close()

	s.dispatch(SignalSavePrimary)
	trigger := <-s.Triggers()
	assert.Equal(t, "hotkey:primary", trigger.Source)
	assert.Nil(t, trigger.ForcedMode, "primary uses the configured mode")

	s.dispatch(SignalSaveSecondary)
	trigger = <-s.Triggers()
	assert.Equal(t, "hotkey:secondary", trigger.Source)
	require.NotNil(t, trigger.ForcedMode)
	assert.Equal(t, domain.ModeMostRecordedProcess, *trigger.ForcedMode)

	s.dispatch(SignalReload)
	select {
	case <-s.Reloads():
	default:
		t.Fatal("expected reload request")
	}
}

func TestSignalTriggerSource_DropsWhileTriggerPending(t *testing.T) {
	s := NewSignalTriggerSource(HotkeyModes{})
	defer s.Close()

	s.dispatch(SignalSavePrimary)
	s.dispatch(SignalSaveSecondary)

	trigger := <-s.Triggers()
	assert.Equal(t, "hotkey:primary", trigger.Source)
	select {
	case extra := <-s.Triggers():
		t.Fatalf("unexpected queued trigger %q", extra.Source)
	default:
	}
}

func TestSignalTriggerSource_CloseIsIdempotent(t *testing.T) {
	s := NewSignalTriggerSource(HotkeyModes{})
	s.Close()
	assert.NotPanics(t, s.Close)
}
