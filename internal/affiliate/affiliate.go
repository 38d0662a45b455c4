// Package affiliate rewrites shop links with affiliate program parameters.
package affiliate

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed programs.yaml
var defaultPrograms []byte

const placeholderPrefix = "YOUR_"

type Program struct {
	Domain string `yaml:"domain" json:"domain"`
	Name   string `yaml:"name" json:"programName"`
	Param  string `yaml:"param" json:"referralParam"`
	ID     string `yaml:"id" json:"-"`
	Active bool   `yaml:"active" json:"isActive"`
}

func (p Program) usable() bool {
	id := strings.TrimSpace(p.ID)
	return p.Active && p.Param != "" && id != "" && !strings.HasPrefix(id, placeholderPrefix)
}

type Result struct {
	URL          string `json:"url"`
	HasAffiliate bool   `json:"hasAffiliate"`
	ProgramName  string `json:"programName,omitempty"`
}

type Rewriter struct {
	programs []Program
}

// Load reads programs from path, or the built-in table when path is empty.
func Load(path string) (*Rewriter, error) {
	data := defaultPrograms
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read affiliate config: %w", err)
		}
	}
	return Parse(data)
}

func Parse(data []byte) (*Rewriter, error) {
	var doc struct {
		Programs []Program `yaml:"programs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse affiliate config: %w", err)
	}

	r := &Rewriter{}
	for _, p := range doc.Programs {
		p.Domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(p.Domain)), "www.")
		if p.Domain == "" {
			continue
		}
		r.programs = append(r.programs, p)
	}
	log.Debugf("Loaded %d affiliate programs", len(r.programs))
	return r, nil
}

// Programs returns the programs that are actually applied.
func (r *Rewriter) Programs() []Program {
	var out []Program
	for _, p := range r.programs {
		if p.usable() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Rewriter) find(host string) (Program, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, p := range r.programs {
		if !p.usable() {
			continue
		}
		if host == p.Domain || strings.HasSuffix(host, "."+p.Domain) {
			return p, true
		}
	}
	return Program{}, false
}

// Process adds the matching program's parameter to rawURL. A parameter the
// link already carries is left untouched.
func (r *Rewriter) Process(rawURL string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return Result{URL: rawURL}
	}
	p, ok := r.find(u.Hostname())
	if !ok {
		return Result{URL: rawURL}
	}

	q := u.Query()
	if q.Has(p.Param) {
		return Result{URL: rawURL, HasAffiliate: true, ProgramName: p.Name}
	}
	q.Set(p.Param, strings.TrimSpace(p.ID))
	u.RawQuery = q.Encode()
	return Result{URL: u.String(), HasAffiliate: true, ProgramName: p.Name}
}
