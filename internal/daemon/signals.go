package daemon

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/qvvonk/smart-replays/internal/domain"
)

// Signals understood by the running daemon.
var (
	SignalSavePrimary   os.Signal = syscall.SIGUSR1
	SignalSaveSecondary os.Signal = syscall.SIGUSR2
	SignalReload        os.Signal = syscall.SIGHUP
)

// HotkeyModes holds the forced naming mode of each hotkey. Nil means the
// configured default mode.
type HotkeyModes struct {
	Primary   *domain.ClipNamingMode
	Secondary *domain.ClipNamingMode
}

// SignalTriggerSource turns process signals into save triggers:
// SIGUSR1 is the primary hotkey, SIGUSR2 the secondary one, SIGHUP a reload.
type SignalTriggerSource struct {
	modes    HotkeyModes
	sigCh    chan os.Signal
	triggers chan domain.SaveTrigger
	reloads  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewSignalTriggerSource starts listening for trigger signals.
func NewSignalTriggerSource(modes HotkeyModes) *SignalTriggerSource {
	s := &SignalTriggerSource{
		modes:    modes,
		sigCh:    make(chan os.Signal, 1),
		triggers: make(chan domain.SaveTrigger, 1),
		reloads:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	signal.Notify(s.sigCh, SignalSavePrimary, SignalSaveSecondary, SignalReload)
	go s.loop()
	return s
}

func (s *SignalTriggerSource) loop() {
	for {
		select {
		case <-s.done:
			return
		case sig := <-s.sigCh:
			s.dispatch(sig)
		}
	}
}

func (s *SignalTriggerSource) dispatch(sig os.Signal) {
	switch sig {
	case SignalSavePrimary:
		s.offer(domain.SaveTrigger{Source: "hotkey:primary", ForcedMode: s.modes.Primary})
	case SignalSaveSecondary:
		s.offer(domain.SaveTrigger{Source: "hotkey:secondary", ForcedMode: s.modes.Secondary})
	case SignalReload:
		s.RequestReload()
	}
}

// RequestReload queues a reload; requests arriving while one is queued collapse.
func (s *SignalTriggerSource) RequestReload() {
	select {
	case s.reloads <- struct{}{}:
	default:
	}
}

// offer hands the trigger over without queueing behind a pending one.
func (s *SignalTriggerSource) offer(t domain.SaveTrigger) {
	select {
	case s.triggers <- t:
	default:
	}
}

// Triggers returns the save trigger channel.
func (s *SignalTriggerSource) Triggers() <-chan domain.SaveTrigger {
	return s.triggers
}

// Reloads returns the reload request channel.
func (s *SignalTriggerSource) Reloads() <-chan struct{} {
	return s.reloads
}

// Close stops signal delivery. Safe to call more than once.
func (s *SignalTriggerSource) Close() {
	s.once.Do(func() {
		signal.Stop(s.sigCh)
		close(s.done)
	})
}

// Ensure SignalTriggerSource implements TriggerSource.
var _ TriggerSource = (*SignalTriggerSource)(nil)
