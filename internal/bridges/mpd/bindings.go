package mpd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Raw command keys with special meaning in a binding file.
const (
	// RawOutboundOnly binds an item that only receives state.
	RawOutboundOnly = "-"

	// RawAnyText matches any text command not bound explicitly.
	// The command text becomes the parameter unless the target sets one.
	RawAnyText = "*"

	// RawPercent and RawNumber are the keys for typed commands.
	RawPercent = "PERCENT"
	RawNumber  = "NUMBER"
)

// Target is what a bound item command resolves to.
type Target struct {
	PlayerID string
	Action   Action
	Param    string
}

func (t Target) String() string {
	if t.Param == "" {
		return fmt.Sprintf("%s:%s", t.PlayerID, t.Action)
	}
	return fmt.Sprintf("%s:%s:%s", t.PlayerID, t.Action, t.Param)
}

// ParseTarget parses playerId:action[:param].
func ParseTarget(s string) (Target, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return Target{}, fmt.Errorf("%w: %q is not playerId:action[:param]", ErrInvalidBinding, s)
	}
	action, err := ParseAction(parts[1])
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: %w", ErrInvalidBinding, s, err)
	}
	t := Target{PlayerID: parts[0], Action: action}
	if len(parts) == 3 {
		t.Param = parts[2]
	}
	return t, nil
}

type bindingFile struct {
	Items map[string]map[string]string `yaml:"items"`
}

type playerAction struct {
	playerID string
	action   Action
}

type playerOutput struct {
	playerID string
	action   Action
	output   int
}

// BindingSet maps items to player actions in both directions.
//
// Thread Safety: All methods are safe for concurrent use; Replace swaps
// the whole set atomically.
type BindingSet struct {
	mu       sync.RWMutex
	commands map[string]map[string]Target
	byAction map[playerAction][]string
	byOutput map[playerOutput][]string
}

// NewBindingSet returns an empty set.
func NewBindingSet() *BindingSet {
	return &BindingSet{
		commands: make(map[string]map[string]Target),
		byAction: make(map[playerAction][]string),
		byOutput: make(map[playerOutput][]string),
	}
}

// LoadBindings reads a YAML binding file.
func LoadBindings(path string) (*BindingSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bindings file: %w", err)
	}
	return ParseBindings(data)
}

// ParseBindings parses YAML binding data. Every invalid entry is reported.
func ParseBindings(data []byte) (*BindingSet, error) {
	var file bindingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing bindings: %w", err)
	}

	set := NewBindingSet()
	var errs []error
	for item, commands := range file.Items {
		if strings.TrimSpace(item) == "" {
			errs = append(errs, fmt.Errorf("%w: empty item name", ErrInvalidBinding))
			continue
		}
		for raw, target := range commands {
			t, err := ParseTarget(target)
			if err != nil {
				errs = append(errs, fmt.Errorf("item %q command %q: %w", item, raw, err))
				continue
			}
			set.add(item, raw, t)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	set.sortIndexes()
	return set, nil
}

func (b *BindingSet) add(item, raw string, t Target) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if b.commands[item] == nil {
		b.commands[item] = make(map[string]Target)
	}
	b.commands[item][key] = t

	pa := playerAction{playerID: t.PlayerID, action: t.Action}
	b.byAction[pa] = appendUnique(b.byAction[pa], item)

	if (t.Action == ActionEnable || t.Action == ActionDisable) && t.Param != "" {
		if n, err := strconv.Atoi(t.Param); err == nil {
			po := playerOutput{playerID: t.PlayerID, action: t.Action, output: n}
			b.byOutput[po] = appendUnique(b.byOutput[po], item)
		}
	}
}

func (b *BindingSet) sortIndexes() {
	for _, items := range b.byAction {
		sort.Strings(items)
	}
	for _, items := range b.byOutput {
		sort.Strings(items)
	}
}

// Replace atomically swaps in the bindings of other.
func (b *BindingSet) Replace(other *BindingSet) {
	other.mu.RLock()
	commands, byAction, byOutput := other.commands, other.byAction, other.byOutput
	other.mu.RUnlock()

	b.mu.Lock()
	b.commands, b.byAction, b.byOutput = commands, byAction, byOutput
	b.mu.Unlock()
}

// ResolveCommand finds the target bound to an item's raw command.
// Matching is case-insensitive. Outbound-only entries never match.
func (b *BindingSet) ResolveCommand(item, raw string) (Target, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	commands, ok := b.commands[item]
	if !ok {
		return Target{}, false
	}

	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == RawOutboundOnly {
		return Target{}, false
	}
	if t, ok := commands[key]; ok {
		return t, true
	}
	if key == RawPercent || key == RawNumber {
		return Target{}, false
	}
	if t, ok := commands[RawAnyText]; ok {
		if t.Param == "" {
			t.Param = strings.TrimSpace(raw)
		}
		return t, true
	}
	return Target{}, false
}

// ItemsFor implements Bindings.
func (b *BindingSet) ItemsFor(playerID string, action Action) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.byAction[playerAction{playerID, action}]...)
}

// ItemsForOutput implements Bindings.
func (b *BindingSet) ItemsForOutput(playerID string, action Action, output int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.byOutput[playerOutput{playerID, action, output}]...)
}

// Items returns all bound item names, sorted.
func (b *BindingSet) Items() []string {
	b.mu.RLock()
	items := make([]string, 0, len(b.commands))
	for item := range b.commands {
		items = append(items, item)
	}
	b.mu.RUnlock()

	sort.Strings(items)
	return items
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}
