package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFiles are the sidecar names probed in a plugin directory, in order.
var ManifestFiles = []string{"module.yaml", "module.yml", "module.json"}

// ErrNoManifest is returned when a plugin directory has no manifest.
var ErrNoManifest = errors.New("plugin: manifest not found")

// Needs is the set of collaborators a plugin declares.
type Needs uint8

const (
	// NeedSpeak injects the speak coordinator.
	NeedSpeak Needs = 1 << iota
	// NeedListen injects the listen coordinator.
	NeedListen
	// NeedStatus injects the home server status client.
	NeedStatus
)

// Has reports whether all of o are in n.
func (n Needs) Has(o Needs) bool { return n&o == o }

func (n Needs) String() string {
	if n == 0 {
		return "none"
	}
	var parts []string
	if n.Has(NeedSpeak) {
		parts = append(parts, "speak")
	}
	if n.Has(NeedListen) {
		parts = append(parts, "listen")
	}
	if n.Has(NeedStatus) {
		parts = append(parts, "status")
	}
	return strings.Join(parts, "|")
}

// Locator identifies a plugin class as "<folder path>/<file>.<Class>", for
// example "./timer_utility/timer_utility.TimerUtility". The manifest lives in
// the folder part.
type Locator struct {
	Raw    string
	Folder string
	File   string
	Class  string
}

// ParseLocator splits a class locator.
func ParseLocator(s string) (Locator, error) {
	module, class, ok := cutLast(s, ".")
	if !ok || class == "" || strings.Contains(class, "/") || module == "" {
		return Locator{}, fmt.Errorf("plugin: invalid locator %q", s)
	}
	folder, file, ok := cutLast(module, "/")
	if !ok {
		folder, file = ".", module
	}
	if file == "" {
		return Locator{}, fmt.Errorf("plugin: invalid locator %q", s)
	}
	return Locator{Raw: s, Folder: folder, File: file, Class: class}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// Manifest is the parsed plugin sidecar.
type Manifest struct {
	Locator          Locator
	RequireOnline    bool
	RequireWebServer bool

	// DisposeTimeoutSeconds bounds how long an activation may run after
	// shutdown was requested.
	DisposeTimeoutSeconds int
	InitOnStartup         bool
	Needs                 Needs

	// Keywords route commands to an active plugin.
	Keywords []string

	// FirstEvent is the due tick of a passive plugin scheduled at startup.
	FirstEvent    int64
	HasFirstEvent bool
}

// flag decodes "True", "false", true, 1 and friends.
type flag struct {
	set bool
	val bool
}

func (f *flag) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean", n.Line)
	}
	v, err := strconv.ParseBool(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a boolean", n.Line, n.Value)
	}
	f.set, f.val = true, v
	return nil
}

// number decodes integers given either bare or quoted.
type number struct {
	set bool
	val int64
}

func (i *number) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", n.Line)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(n.Value), 10, 64)
	if err != nil {
		return fmt.Errorf("line %d: %q is not an integer", n.Line, n.Value)
	}
	i.set, i.val = true, v
	return nil
}

type rawManifest struct {
	RequireOnline          flag     `yaml:"require_online"`
	RequireWebServer       flag     `yaml:"require_web_server"`
	DisposeTimeout         number   `yaml:"dispose_timeout"`
	InitOnStartup          flag     `yaml:"init_on_startup"`
	RequireSpeechSpeak     flag     `yaml:"require_speech_speak"`
	RequireSpeechListen    flag     `yaml:"require_speech_listen"`
	RequireWebServerStatus flag     `yaml:"require_web_server_status"`
	Keywords               []string `yaml:"keywords"`
	FirstEvent             number   `yaml:"first_event"`
}

// ParseManifest decodes a manifest document. YAML and JSON are both
// accepted. Every flag and dispose_timeout must be present.
func ParseManifest(loc Locator, data []byte) (Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("plugin: parse manifest: %w", err)
	}

	var errs []error
	required := []struct {
		name string
		set  bool
	}{
		{"require_online", raw.RequireOnline.set},
		{"require_web_server", raw.RequireWebServer.set},
		{"dispose_timeout", raw.DisposeTimeout.set},
		{"init_on_startup", raw.InitOnStartup.set},
		{"require_speech_speak", raw.RequireSpeechSpeak.set},
		{"require_speech_listen", raw.RequireSpeechListen.set},
		{"require_web_server_status", raw.RequireWebServerStatus.set},
	}
	for _, r := range required {
		if !r.set {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if raw.DisposeTimeout.val < 0 {
		errs = append(errs, fmt.Errorf("dispose_timeout %d must not be negative", raw.DisposeTimeout.val))
	}
	if err := errors.Join(errs...); err != nil {
		return Manifest{}, fmt.Errorf("plugin: manifest for %s: %w", loc.Raw, err)
	}

	m := Manifest{
		Locator:               loc,
		RequireOnline:         raw.RequireOnline.val,
		RequireWebServer:      raw.RequireWebServer.val,
		DisposeTimeoutSeconds: int(raw.DisposeTimeout.val),
		InitOnStartup:         raw.InitOnStartup.val,
		FirstEvent:            raw.FirstEvent.val,
		HasFirstEvent:         raw.FirstEvent.set,
	}
	for _, k := range raw.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m.Keywords = append(m.Keywords, k)
		}
	}
	if raw.RequireSpeechSpeak.val {
		m.Needs |= NeedSpeak
	}
	if raw.RequireSpeechListen.val {
		m.Needs |= NeedListen
	}
	if raw.RequireWebServerStatus.val {
		m.Needs |= NeedStatus
	}
	return m, nil
}

// ReadManifest locates and parses the manifest for loc below dir.
func ReadManifest(dir string, loc Locator) (Manifest, error) {
	folder := filepath.Join(dir, filepath.FromSlash(loc.Folder))
	for _, name := range ManifestFiles {
		data, err := os.ReadFile(filepath.Join(folder, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Manifest{}, fmt.Errorf("plugin: read manifest: %w", err)
		}
		return ParseManifest(loc, data)
	}
	return Manifest{}, fmt.Errorf("%w in %s", ErrNoManifest, folder)
}
