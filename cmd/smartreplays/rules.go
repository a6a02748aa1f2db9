package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qvvonk/smart-replays/internal/infra"
	"github.com/qvvonk/smart-replays/internal/naming"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage custom clip names",
	Long: `Custom names map an executable, a directory or a scene name to a clip name.
Each rule has the form "PATH > NAME". A rule for a directory applies to every
executable below it; the most specific rule wins.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List custom names",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   `add "PATH > NAME"`,
	Short: "Add a custom name",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesAdd,
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <number|path>",
	Short: "Remove a custom name by list number or match path",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesRemove,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate stored custom names, or a rules file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesCheck,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace custom names with the rules in a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesImport,
}

var rulesExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write custom names to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesExport,
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Work with the clip filename template",
}

var templateCheckCmd = &cobra.Command{
	Use:   "check [template]",
	Short: "Validate a filename template and show an example",
	Long: `Validates a filename template (the configured one when omitted).

%NAME is the clip name, %f the microseconds; %a %A %w %d %b %B %m %y %Y %H %I
%p %M %S %z %Z %j %U %W follow strftime. %% is a literal percent sign.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplateCheck,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path|scene>",
	Short: "Show the clip name a path or scene resolves to",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var (
	importAppend bool
	resolveScene bool
)

func init() {
	rulesImportCmd.Flags().BoolVar(&importAppend, "append", false, "Append to the existing custom names instead of replacing them")
	resolveCmd.Flags().BoolVar(&resolveScene, "scene", false, "Treat the argument as a scene name")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesRemoveCmd, rulesCheckCmd, rulesImportCmd, rulesExportCmd)
	templateCmd.AddCommand(templateCheckCmd)
}

// ruleStore is the subset of the state store the rule commands need.
type ruleStore interface {
	CustomNames() ([]string, error)
	SetCustomNames(rules []string) error
}

// replaceRules validates the whole candidate set and persists it only if every
// rule is valid.
func replaceRules(store ruleStore, raw []string) (*naming.RuleSet, error) {
	rules, err := naming.ParseRules(raw)
	if err != nil {
		return nil, err
	}
	if err := store.SetCustomNames(rules.Strings()); err != nil {
		return nil, fmt.Errorf("failed to save custom names: %w", err)
	}
	return rules, nil
}

// removeRule returns raw without the rule selected by a 1-based number or a
// match path.
func removeRule(raw []string, selector string) ([]string, error) {
	idx := -1
	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(raw) {
			return nil, fmt.Errorf("no custom name #%d (have %d)", n, len(raw))
		}
		idx = n - 1
	} else {
		want := naming.NormalizePath(selector)
		for i, r := range raw {
			path, _, _ := strings.Cut(r, naming.RuleSeparator)
			if naming.NormalizePath(strings.TrimSpace(path)) == want {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("no custom name for %q", selector)
		}
	}
	out := make([]string, 0, len(raw)-1)
	out = append(out, raw[:idx]...)
	return append(out, raw[idx+1:]...), nil
}

func printRuleErrors(errs []*naming.RuleError) {
	for _, re := range errs {
		fmt.Printf("  #%d %q: %v\n", re.Index+1, re.Rule, re.Err)
	}
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.CustomNames()
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		fmt.Println("No custom names.")
		return nil
	}
	fmt.Println("\n=== Custom Names ===")
	for i, r := range raw {
		fmt.Printf("%3d. %s\n", i+1, r)
	}
	return nil
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.CustomNames()
	if err != nil {
		return err
	}
	rules, err := replaceRules(store, append(raw, args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("Added. %d custom names.\n", rules.Len())
	notifyDaemonReload(store)
	return nil
}

func runRulesRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.CustomNames()
	if err != nil {
		return err
	}
	remaining, err := removeRule(raw, args[0])
	if err != nil {
		return err
	}
	// Stored rules may predate stricter validation; keep only what parses.
	rules, ruleErrs := naming.ParseRulesLenient(remaining)
	if err := store.SetCustomNames(rules.Strings()); err != nil {
		return err
	}
	if len(ruleErrs) > 0 {
		fmt.Println("Dropped invalid custom names:")
		printRuleErrors(ruleErrs)
	}
	fmt.Printf("Removed. %d custom names.\n", rules.Len())
	notifyDaemonReload(store)
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	var raw []string
	if len(args) == 1 {
		imported, err := infra.ImportRules(args[0])
		if err != nil {
			return err
		}
		raw = imported
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if raw, err = store.CustomNames(); err != nil {
			return err
		}
	}

	_, ruleErrs := naming.ParseRulesLenient(raw)
	if len(ruleErrs) == 0 {
		fmt.Printf("OK: %d custom names.\n", len(raw))
		return nil
	}
	fmt.Printf("%d of %d custom names are invalid:\n", len(ruleErrs), len(raw))
	printRuleErrors(ruleErrs)
	return errors.New("invalid custom names")
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	imported, err := infra.ImportRules(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw := imported
	if importAppend {
		existing, err := store.CustomNames()
		if err != nil {
			return err
		}
		raw = append(existing, imported...)
	}

	rules, err := replaceRules(store, raw)
	if err != nil {
		return fmt.Errorf("nothing imported: %w", err)
	}
	fmt.Printf("Imported. %d custom names.\n", rules.Len())
	notifyDaemonReload(store)
	return nil
}

func runRulesExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.CustomNames()
	if err != nil {
		return err
	}
	if err := infra.ExportRules(args[0], raw); err != nil {
		return err
	}
	fmt.Printf("Exported %d custom names to %s\n", len(raw), args[0])
	return nil
}

// describeTemplateError renders tpl with a caret under the failing directive.
func describeTemplateError(tpl string, err error) string {
	var te *naming.TemplateError
	if !errors.As(err, &te) {
		return err.Error()
	}
	return fmt.Sprintf("%s\n  %s\n  %s^", err, tpl, strings.Repeat(" ", te.Pos))
}

func runTemplateCheck(cmd *cobra.Command, args []string) error {
	tpl := ""
	if len(args) == 1 {
		tpl = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tpl = cfg.Naming.Template
	}

	filename, err := naming.FormatFilename("Dota 2", time.Now(), tpl)
	if err != nil {
		fmt.Println(describeTemplateError(tpl, err))
		return errors.New("invalid template")
	}
	fmt.Printf("OK: %s\nExample: %s\n", tpl, filename)
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.CustomNames()
	if err != nil {
		return err
	}
	rules, _ := naming.ParseRulesLenient(raw)

	kind := naming.CandidateExecutable
	if resolveScene {
		kind = naming.CandidateScene
	}
	if rule, ok := rules.Match(args[0]); ok {
		fmt.Printf("%s (rule %q)\n", rules.Resolve(args[0], kind), rule.String())
		return nil
	}
	fmt.Printf("%s (no rule matched)\n", rules.Resolve(args[0], kind))
	return nil
}
