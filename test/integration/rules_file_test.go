//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/qvvonk/smart-replays/internal/infra"
	"github.com/qvvonk/smart-replays/internal/naming"
)

var _ = Describe("Custom name persistence", func() {
	var (
		tmpDir string
		store  *infra.EncryptedStore
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "smart-replays-rules-*")
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.OpenStore(tmpDir, infra.NewStoreKeyFile(tmpDir))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	It("should round-trip rules through export and import in order", func() {
		rules, err := naming.ParseRules([]string{
			`C:\Games\Dota > Dota 2`,
			"/usr/bin/obs > OBS",
			"Just Chatting > Chat",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.SetCustomNames(rules.Strings())).To(Succeed())

		exported := filepath.Join(tmpDir, "rules.json")
		stored, err := store.CustomNames()
		Expect(err).NotTo(HaveOccurred())
		Expect(infra.ExportRules(exported, stored)).To(Succeed())

		imported, err := infra.ImportRules(exported)
		Expect(err).NotTo(HaveOccurred())
		reparsed, err := naming.ParseRules(imported)
		Expect(err).NotTo(HaveOccurred())
		Expect(reparsed.Rules()).To(Equal(rules.Rules()))
	})

	It("should survive reopening the encrypted store", func() {
		Expect(store.SetCustomNames([]string{"/games/cs2 > Counter-Strike"})).To(Succeed())
		Expect(store.Close()).To(Succeed())

		reopened, err := infra.OpenStore(tmpDir, infra.NewStoreKeyFile(tmpDir))
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		names, err := reopened.CustomNames()
		Expect(err).NotTo(HaveOccurred())
		Expect(names).To(ConsistOf("/games/cs2 > Counter-Strike"))
	})

	It("should reject an imported set with one bad rule", func() {
		bad := filepath.Join(tmpDir, "bad.json")
		Expect(os.WriteFile(bad, []byte(`["/a > A", "no separator"]`), 0600)).To(Succeed())

		imported, err := infra.ImportRules(bad)
		Expect(err).NotTo(HaveOccurred())

		_, err = naming.ParseRules(imported)
		var re *naming.RuleError
		Expect(err).To(BeAssignableToTypeOf(re))
		Expect(err.(*naming.RuleError).Index).To(Equal(1))
	})
})
