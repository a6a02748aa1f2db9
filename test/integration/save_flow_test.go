//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/qvvonk/smart-replays/internal/daemon"
	"github.com/qvvonk/smart-replays/internal/domain"
	"github.com/qvvonk/smart-replays/internal/infra"
	"github.com/qvvonk/smart-replays/internal/naming"
	"github.com/qvvonk/smart-replays/internal/usecase"
	"github.com/qvvonk/smart-replays/test/fixtures"
)

// idleInput reports no input ever.
type idleInput struct{}

func (idleInput) LastActivity(ctx context.Context) (domain.InputActivitySample, error) {
	return domain.InputActivitySample{}, nil
}

var _ = Describe("Save flow", func() {
	var (
		ctx       context.Context
		tmpDir    string
		videos    string
		store     *infra.EncryptedStore
		buffer    *fixtures.FakeReplayBuffer
		desktop   *fixtures.FakeDesktop
		gate      *usecase.SaveLock
		resolver  *usecase.ModeResolver
		scheduler *daemon.RestartScheduler
		logger    *zap.Logger
	)

	newOrchestrator := func(cfg usecase.OrchestratorConfig, rules *naming.RuleSet, tpl string) *usecase.SaveOrchestrator {
		o := usecase.NewSaveOrchestrator(cfg, gate, resolver, rules, nil, buffer,
			infra.NewFileSystemManagerWithHome(tmpDir), infra.NewLogNotifier(logger), scheduler, store, logger)
		if tpl != "" {
			Expect(o.SetTemplate(tpl)).To(Succeed())
		}
		return o
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = zap.NewNop()

		tmpDir, err = os.MkdirTemp("", "smart-replays-integration-*")
		Expect(err).NotTo(HaveOccurred())
		videos = filepath.Join(tmpDir, "Videos")

		store, err = infra.OpenStore(filepath.Join(tmpDir, "state"), infra.NewStoreKeyFile(filepath.Join(tmpDir, "state")))
		Expect(err).NotTo(HaveOccurred())

		buffer = fixtures.NewFakeReplayBuffer(videos)
		desktop = fixtures.NewFakeDesktop("/home/alex/.steam/steamapps/common/dota 2 beta/game/bin/linuxsteamrt64/dota2", "Ranked")
		gate = usecase.NewSaveLock()
		resolver = usecase.NewModeResolver(desktop, desktop, nil, usecase.TieBreakMostRecent, logger)
		scheduler = daemon.NewRestartScheduler(buffer, idleInput{}, gate, infra.NewLogNotifier(logger), logger)
		gate.OnRelease(scheduler.OnSaveReleased)
		scheduler.OnRestart(resolver.ResetWindow)
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("naming by the current process", func() {
		Context("when a directory rule covers the game", func() {
			It("should name, sort and record the clip", func() {
				rules, err := naming.ParseRules([]string{"/home/alex/.steam/steamapps/common/dota 2 beta > Dota 2"})
				Expect(err).NotTo(HaveOccurred())

				o := newOrchestrator(usecase.OrchestratorConfig{
					DefaultMode:     domain.ModeCurrentProcess,
					SortIntoFolders: true,
				}, rules, "%NAME_%Y")

				result, err := o.Save(ctx, domain.SaveTrigger{Source: "hotkey:primary"})
				Expect(err).NotTo(HaveOccurred())

				want := filepath.Join(videos, "Dota 2", "Dota 2_"+time.Now().Format("2006")+".mkv")
				Expect(result.Path).To(Equal(want))
				Expect(want).To(BeARegularFile())
				Expect(result.SizeBytes).To(BeNumerically(">", 0))

				clips, err := store.RecentClips(1)
				Expect(err).NotTo(HaveOccurred())
				Expect(clips).To(HaveLen(1))
				Expect(clips[0].Name).To(Equal("Dota 2"))
				Expect(clips[0].Path).To(Equal(want))
			})
		})

		Context("when two clips get the same name", func() {
			It("should not overwrite the first clip", func() {
				o := newOrchestrator(usecase.OrchestratorConfig{DefaultMode: domain.ModeCurrentProcess}, nil, "%NAME")

				first, err := o.Save(ctx, domain.SaveTrigger{Source: "cli"})
				Expect(err).NotTo(HaveOccurred())
				second, err := o.Save(ctx, domain.SaveTrigger{Source: "cli"})
				Expect(err).NotTo(HaveOccurred())

				Expect(filepath.Base(first.Path)).To(Equal("dota2.mkv"))
				Expect(filepath.Base(second.Path)).To(Equal("dota2 (1).mkv"))
				Expect(first.Path).To(BeARegularFile())
				Expect(second.Path).To(BeARegularFile())
			})
		})
	})

	Describe("naming by the most recorded process", func() {
		It("should pick the process with the longest dwell time", func() {
			resolver.Sample(ctx, 5*time.Second, time.Now())
			desktop.Focus("/usr/bin/firefox")
			resolver.Sample(ctx, 3*time.Second, time.Now())

			o := newOrchestrator(usecase.OrchestratorConfig{DefaultMode: domain.ModeCurrentProcess}, nil, "%NAME")
			forced := domain.ModeMostRecordedProcess

			result, err := o.Save(ctx, domain.SaveTrigger{Source: "hotkey:secondary", ForcedMode: &forced})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Context.ResolvedName).To(Equal("dota2"))
			Expect(resolver.Tally().Len()).To(BeZero(), "the window is consumed by the save")
		})
	})

	Describe("naming by scene", func() {
		It("should use the scene name through the rules", func() {
			rules, err := naming.ParseRules([]string{"Ranked > Ranked Match"})
			Expect(err).NotTo(HaveOccurred())
			o := newOrchestrator(usecase.OrchestratorConfig{DefaultMode: domain.ModeCurrentScene}, rules, "%NAME")

			result, err := o.Save(ctx, domain.SaveTrigger{Source: "cli"})
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Base(result.Path)).To(Equal("Ranked Match.mkv"))
		})
	})

	Describe("restart after save", func() {
		It("should restart the buffer once the save released the lock", func() {
			o := newOrchestrator(usecase.OrchestratorConfig{
				DefaultMode:      domain.ModeCurrentProcess,
				RestartAfterSave: true,
			}, nil, "")

			_, err := o.Save(ctx, domain.SaveTrigger{Source: "cli"})
			Expect(err).NotTo(HaveOccurred())

			Eventually(scheduler.Wake()).Should(Receive())
			_, err = scheduler.Check(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(buffer.Restarts()).To(Equal(1))
		})
	})

	Describe("inactive buffer", func() {
		It("should fail without producing a clip", func() {
			buffer.SetActive(false)
			o := newOrchestrator(usecase.OrchestratorConfig{DefaultMode: domain.ModeCurrentProcess}, nil, "")

			_, err := o.Save(ctx, domain.SaveTrigger{Source: "cli"})
			Expect(err).To(MatchError(usecase.ErrBufferInactive))
			Expect(videos).NotTo(BeADirectory())
		})
	})
})
