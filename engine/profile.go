package engine

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"plansync/report"
	"plansync/store"
)

// Profile is a named device description kept as <statedir>/<name>.yaml by
// the editor application. Explicit flags always win over profile values.
type Profile struct {
	Transport  string `yaml:"transport"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	RemoteRoot string `yaml:"remote_root"`
	Mount      string `yaml:"mount"`
}

// LoadProfile reads a device profile from the state dir.
func LoadProfile(name string) (*Profile, error) {
	ph := filepath.Join(store.StateDir(), name+".yaml")
	bs, err := ioutil.ReadFile(ph)
	if os.IsNotExist(err) {
		return nil, report.Errf(report.CodePathNotFound, "no device profile %q at %s", name, ph)
	}
	if err != nil {
		return nil, report.Wrap(report.CodePathNotFound, err, "profile %q", name)
	}

	var p Profile
	if err := yaml.Unmarshal(bs, &p); err != nil {
		return nil, report.Wrap(report.CodePathNotFound, err, "profile %q is not valid yaml", name)
	}
	return &p, nil
}

// ApplyTo fills only the options the caller left empty.
func (p *Profile) ApplyTo(o *Options) {
	if o.Transport == "" || o.Transport == store.KindAuto {
		if p.Transport != "" {
			o.Transport = store.Kind(p.Transport)
		}
	}
	if o.Host == "" {
		o.Host = p.Host
	}
	if o.Port == 0 {
		o.Port = p.Port
	}
	if o.RemoteRoot == "" {
		o.RemoteRoot = p.RemoteRoot
	}
	if o.Mount == "" {
		o.Mount = p.Mount
	}
}
