package install

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/talc/source"
)

// Diagnostic is one reported problem.
type Diagnostic struct {
	Reference source.Reference
	Location  source.Location
	Message   string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Location, d.Message)
}

// Collector is a Context that keeps everything it is given. It is safe for
// concurrent use.
type Collector struct {
	// FailFast stops an installation after the first reported problem.
	FailFast bool

	log commonlog.Logger

	mu          sync.Mutex
	diagnostics []Diagnostic
	annotations map[any][]Annotation
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		log:         commonlog.GetLogger("talc.install"),
		annotations: make(map[any][]Annotation),
	}
}

// ReportError implements Context.
func (c *Collector) ReportError(ref source.Reference, message string) {
	d := Diagnostic{Reference: ref, Location: ref.Location(), Message: message}
	c.log.Debugf("%s", d)
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, d)
	c.mu.Unlock()
}

// AnnotateObject implements Context.
func (c *Collector) AnnotateObject(artifact any, annotations []Annotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annotations[artifact] = append(c.annotations[artifact], annotations...)
}

// Diagnostics returns the reported problems in report order.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Diagnostic(nil), c.diagnostics...)
}

// Annotations returns the annotations recorded against artifact.
func (c *Collector) Annotations(artifact any) []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Annotation(nil), c.annotations[artifact]...)
}

// Annotation returns the value recorded for key against artifact.
func (c *Collector) Annotation(artifact any, key string) (string, bool) {
	for _, a := range c.Annotations(artifact) {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Stopped reports whether the installation should stop.
func (c *Collector) Stopped() bool {
	if !c.FailFast {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diagnostics) > 0
}

// Err joins the reported problems, or returns nil.
func (c *Collector) Err() error {
	diags := c.Diagnostics()
	errs := make([]error, len(diags))
	for i, d := range diags {
		errs[i] = errors.New(d.String())
	}
	return errors.Join(errs...)
}
